package commands

import (
	"aimawatch-backend/lib/aima"
	"aimawatch-backend/lib/configutil"
	configlibsql "aimawatch-backend/lib/configutil/libsql"
	"aimawatch-backend/lib/serviceutil"
	"aimawatch-backend/services/checker"
)

type TelegramConfig struct {
	Token string `json:"token"`
}

type AimaConfig struct {
	LoginUrl  string `json:"login_url"`
	CheckUrl  string `json:"check_url"`
	UserAgent string `json:"user_agent"`
	ProxyUrl  string `json:"proxy_url"`
	// the portal's certificate chain breaks from time to time
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

type EncryptionConfig struct {
	// Secret seeds per-user credential keys. When empty the bot token
	// is used, matching deployments that predate this setting.
	Secret string `json:"secret"`
}

type WebConfig struct {
	Port int `json:"port"`
}

type Config struct {
	Telegram   TelegramConfig      `json:"telegram"`
	Aima       AimaConfig          `json:"aima"`
	Database   configlibsql.Struct `json:"database"`
	Encryption EncryptionConfig    `json:"encryption"`
	Web        WebConfig           `json:"web"`
	Alerts     checker.SmtpConfig  `json:"alerts"`
}

func readConfig() Config {
	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return config
}

func (c Config) vaultSecret() string {
	if c.Encryption.Secret != "" {
		return c.Encryption.Secret
	}
	return c.Telegram.Token
}

func newAimaClient(config Config) *aima.Client {
	client, err := aima.NewClient(aima.Options{
		LoginUrl:           config.Aima.LoginUrl,
		CheckUrl:           config.Aima.CheckUrl,
		UserAgent:          config.Aima.UserAgent,
		ProxyUrl:           config.Aima.ProxyUrl,
		InsecureSkipVerify: config.Aima.InsecureSkipVerify,
	})
	if err != nil {
		serviceutil.Fatal("failed to create aima client", err)
	}
	return client
}
