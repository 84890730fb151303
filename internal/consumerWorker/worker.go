package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"giveaway/internal/dto"
	"giveaway/internal/mailer"
	"giveaway/internal/rabbit"
)

// Reader consumes entry-received messages and sends confirmation
// emails. Mail failures are requeue-worthy; malformed payloads are not.
type Reader struct {
	RMQ    *rabbit.Client
	mail   *mailer.Mailer
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, mail *mailer.Mailer) *Reader {
	return &Reader{
		RMQ:  rmq,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("entry notification worker started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.EntryReceivedMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("failed to unmarshal message: %s", string(body))
				return nil
			}

			zlog.Logger.Info().
				Int64("entry_id", msg.EntryID).
				Int64("giveaway_id", msg.GiveawayID).
				Msg("received entry notification")

			if err := r.mail.SendEntryReceived(msg.GiveawayTitle, msg.Name, msg.Email); err != nil {
				zlog.Logger.Warn().
					Err(err).
					Int64("entry_id", msg.EntryID).
					Msg("failed to send entry confirmation email")
				return err
			}
			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("entry notification worker stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
