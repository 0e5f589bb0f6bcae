package config

// Features are the recognized feature switches for the auth layer.
// They are injected into the lifecycle services at construction time;
// nothing reads them from global state after startup.
type Features struct {
	RegistrationEnabled  bool `env:"PANEL_REGISTRATION_ENABLED" env-default:"false"`
	PasswordResetEnabled bool `env:"PANEL_PASSWORD_RESET_ENABLED" env-default:"true"`
	LongSessionsEnabled  bool `env:"PANEL_LONG_SESSIONS_ENABLED" env-default:"true"`
}

type DbConfig struct {
	Host     string `env:"PANEL_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"PANEL_PG_PORT" env-default:"5432"`
	Database string `env:"PANEL_PG_DATABASE" env-default:"panel_db"`
	User     string `env:"PANEL_PG_USER" env-default:"panel"`
	Password string `env:"PANEL_PG_PASSWORD" env-default:"pwd"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" env-default:"localhost"`
	Port     int    `env:"SMTP_PORT" env-default:"587"`
	TLS      bool   `env:"SMTP_TLS" env-default:"true"`
	Username string `env:"SMTP_USERNAME" env-default:""`
	Password string `env:"SMTP_PASSWORD" env-default:""`
	From     string `env:"SMTP_FROM" env-default:"noreply@example.com"`
}

// RedisConfig configures the ephemeral cooldown store. An empty Addr
// means no redis, which disables reset rate-limiting entirely.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:""`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type TokenConfig struct {
	Secret string `env:"RECOVERY_TOKEN_SECRET" env-default:"very-secure-recovery-secret"`
	Issuer string `env:"RECOVERY_TOKEN_ISSUER" env-default:"panelauth"`
}

type ServerConfig struct {
	Host    string `env:"PANEL_HOST" env-default:"localhost"`
	Port    int    `env:"PANEL_PORT" env-default:"4000"`
	BaseURL string `env:"PANEL_BASE_URL" env-default:"http://localhost:4000"`
}

// Config is the full configuration loaded by cmd/panelauth.
type Config struct {
	Features Features
	Db       DbConfig
	SMTP     SMTPConfig
	Redis    RedisConfig
	Token    TokenConfig
	Server   ServerConfig
}
