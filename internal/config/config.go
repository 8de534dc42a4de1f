package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort            string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL         string `env:"DATABASE_URL,required,notEmpty"`
	ChatSecret          string `env:"CHAT_SECRET,required,notEmpty"`
	JWTSecret           string `env:"JWT_SECRET"`
	JWTIssuer           string `env:"JWT_ISSUER" envDefault:"referral-portal"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`

	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`

	AssessmentScriptPath string `env:"ASSESSMENT_SCRIPT_PATH"`
	AssessmentPacingMS   int    `env:"ASSESSMENT_PACING_MS" envDefault:"800"`

	SendRateWindowSeconds int `env:"SEND_RATE_WINDOW_SECONDS" envDefault:"10"`
	SendRateMax           int `env:"SEND_RATE_MAX" envDefault:"20"`

	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser        string `env:"SMTP_USER"`
	SMTPPass        string `env:"SMTP_PASS"`
	SMTPFrom        string `env:"SMTP_FROM"`
	SMTPFromName    string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS      bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	StaffAlertEmail string `env:"STAFF_ALERT_EMAIL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) AssessmentPacing() time.Duration {
	if c.AssessmentPacingMS <= 0 {
		return 0
	}
	return time.Duration(c.AssessmentPacingMS) * time.Millisecond
}

func (c *Config) SendRateWindow() time.Duration {
	return time.Duration(c.SendRateWindowSeconds) * time.Second
}

func (c *Config) JWTAccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}
