package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"giveaway/internal/auth"
	"giveaway/internal/mailer"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type UploadConfig struct {
	Dir string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	return ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("database.master_dsn is required")
	}

	opts := &dbpg.Options{
		MaxOpenConns: cfg.GetInt("database.max_open_conns"),
		MaxIdleConns: cfg.GetInt("database.max_idle_conns"),
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}

	log.Info().Msg("database configuration loaded")
	return masterDSN, nil, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbit.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "giveaway.notifications"
	}
	if rc.Queue == "" {
		rc.Queue = "entry_emails"
	}
	log.Info().Msg("rabbit configuration loaded")
	return rc, nil
}

func BuildAuthConfig(cfg *config.Config, log *zerolog.Logger) (auth.Config, error) {
	ac := auth.Config{
		Secret:             cfg.GetString("auth.secret"),
		Username:           cfg.GetString("auth.admin_username"),
		Password:           cfg.GetString("auth.admin_password"),
		DeprecatedUsername: cfg.GetString("auth.deprecated_admin_username"),
	}
	if ac.Secret == "" {
		return ac, fmt.Errorf("auth.secret is required")
	}
	if ac.Username == "" {
		return ac, fmt.Errorf("auth.admin_username is required")
	}
	if ac.Password == "" {
		return ac, fmt.Errorf("auth.admin_password is required")
	}

	ttlMinutes := cfg.GetInt("auth.token_ttl_minutes")
	if ttlMinutes <= 0 {
		ttlMinutes = 720
	}
	ac.TokenTTL = time.Duration(ttlMinutes) * time.Minute

	log.Info().Str("admin_username", ac.Username).Msg("auth configuration loaded")
	return ac, nil
}

func BuildUploadConfig(cfg *config.Config, log *zerolog.Logger) UploadConfig {
	dir := cfg.GetString("upload.dir")
	if dir == "" {
		dir = "./static/uploads"
		log.Warn().Msg("upload.dir not set, defaulting to ./static/uploads")
	}
	return UploadConfig{Dir: dir}
}

func BuildSMTPConfig(cfg *config.Config, log *zerolog.Logger) mailer.Config {
	mc := mailer.Config{
		Host:     cfg.GetString("smtp.host"),
		Port:     cfg.GetString("smtp.port"),
		From:     cfg.GetString("smtp.from"),
		Password: cfg.GetString("smtp.password"),
		Enabled:  cfg.GetBool("smtp.enabled"),
	}
	if mc.Enabled && (mc.Host == "" || mc.From == "") {
		log.Warn().Msg("smtp enabled but host or from is empty, disabling mailer")
		mc.Enabled = false
	}
	return mc
}
