package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

type Config struct {
	Host     string
	Port     string
	From     string
	Password string
	Enabled  bool
}

type Mailer struct {
	cfg Config
	log *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// SendEntryReceived mails an entry confirmation to the participant.
func (m *Mailer) SendEntryReceived(giveawayTitle, name, recipient string) error {
	if !m.cfg.Enabled {
		m.log.Debug().Str("email", recipient).Msg("mailer disabled, skipping notification")
		return nil
	}

	subject := "Your giveaway entry was received"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour entry for the giveaway \"%s\" has been received.\nGood luck!",
		name, giveawayTitle,
	)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, recipient, subject, body,
	)

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{recipient}, []byte(msg)); err != nil {
		m.log.Warn().Msgf("failed to send email to %s: %v", recipient, err)
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("email", recipient).Msg("entry confirmation email sent")
	return nil
}
