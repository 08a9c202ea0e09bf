package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	authConfig "github.com/iurnickita/paybot/internal/auth/config"
	"github.com/iurnickita/paybot/internal/clock"
	handlerConfig "github.com/iurnickita/paybot/internal/handler/config"
	ledgerConfig "github.com/iurnickita/paybot/internal/ledger/config"
	loggerConfig "github.com/iurnickita/paybot/internal/logger/config"
	ratelimitConfig "github.com/iurnickita/paybot/internal/ratelimit/config"
	reconcileConfig "github.com/iurnickita/paybot/internal/reconcile/config"
	serviceConfig "github.com/iurnickita/paybot/internal/service/config"
	storeConfig "github.com/iurnickita/paybot/internal/store/config"
	telegramConfig "github.com/iurnickita/paybot/internal/telegram/config"
)

type Config struct {
	Handler   handlerConfig.Config
	Service   serviceConfig.Config
	Store     storeConfig.Config
	Ledger    ledgerConfig.Config
	Logger    loggerConfig.Config
	Auth      authConfig.Config
	Telegram  telegramConfig.Config
	Reconcile reconcileConfig.Config
	RateLimit ratelimitConfig.Config
	// UTCOffset is the fixed offset of the regional clock.
	UTCOffset time.Duration
}

// GetConfig reads command-line flags. Environment variables override them.
func GetConfig() (Config, error) {
	return parse(os.Args[0], os.Args[1:], os.Getenv)
}

func parse(name string, args []string, getenv func(string) string) (Config, error) {
	cfg := Config{
		Ledger:    ledgerConfig.Default(),
		Reconcile: reconcileConfig.Default(),
		RateLimit: ratelimitConfig.Default(),
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.Handler.ServerAddr, "a", ":8080", "address and port of the HTTP API")
	fs.StringVar(&cfg.Store.DBDsn, "d", "", "Postgres connection string")
	fs.StringVar(&cfg.Store.DataDir, "data", "", "directory for JSON file storage")
	fs.DurationVar(&cfg.Ledger.WriteTimeout, "store-timeout", cfg.Ledger.WriteTimeout, "timeout of one storage write")
	fs.StringVar(&cfg.Logger.LogLevel, "l", "info", "log level")
	fs.StringVar(&cfg.Telegram.Token, "tg", "", "telegram bot token")
	fs.Int64Var(&cfg.Telegram.AdminID, "admin", 0, "telegram user id of the administrator")
	fs.Int64Var(&cfg.Telegram.AdminChatID, "admin-chat", 0, "telegram chat for new request announcements")
	fs.StringVar(&cfg.Auth.AdminLogin, "admin-login", "", "administrator login for the HTTP API")
	fs.StringVar(&cfg.Auth.AdminPasswordHash, "admin-password-hash", "", "bcrypt hash of the administrator password")
	fs.StringVar(&cfg.Auth.TokenSecret, "token-secret", "", "secret signing session tokens")
	fs.DurationVar(&cfg.Auth.TokenTTL, "token-ttl", 24*time.Hour, "session token lifetime")
	fs.StringVar(&cfg.Service.NotifyWebhookURL, "webhook", "", "URL receiving request events")
	fs.DurationVar(&cfg.Service.NotifyTimeout, "notify-timeout", 5*time.Second, "timeout of one notification")
	fs.DurationVar(&cfg.UTCOffset, "utc-offset", clock.DefaultOffset, "offset of the regional clock")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	envString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	envString("RUN_ADDRESS", &cfg.Handler.ServerAddr)
	envString("DATABASE_URI", &cfg.Store.DBDsn)
	envString("DATA_DIR", &cfg.Store.DataDir)
	envString("LOG_LEVEL", &cfg.Logger.LogLevel)
	envString("TELEGRAM_TOKEN", &cfg.Telegram.Token)
	envString("ADMIN_LOGIN", &cfg.Auth.AdminLogin)
	envString("ADMIN_PASSWORD_HASH", &cfg.Auth.AdminPasswordHash)
	envString("TOKEN_SECRET", &cfg.Auth.TokenSecret)
	envString("NOTIFY_WEBHOOK_URL", &cfg.Service.NotifyWebhookURL)

	for key, dst := range map[string]*int64{
		"ADMIN_ID":      &cfg.Telegram.AdminID,
		"ADMIN_CHAT_ID": &cfg.Telegram.AdminChatID,
	} {
		if v := getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if err := cfg.RateLimit.Validate(); err != nil {
		return Config{}, err
	}

	// tokens from an earlier run stop validating
	if cfg.Auth.TokenSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return Config{}, err
		}
		cfg.Auth.TokenSecret = hex.EncodeToString(secret)
	}

	return cfg, nil
}
