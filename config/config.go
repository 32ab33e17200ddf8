package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Database     DatabaseConfig     `envPrefix:"DB_"`
	Mail         MailConfig         `envPrefix:"MAIL_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	Verification VerificationConfig `envPrefix:"VERIFICATION_"`
	RefreshToken RefreshTokenConfig `envPrefix:"REFRESH_TOKEN_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"LocalJobs Identity"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
	Env  Mode   `env:"ENV" envDefault:"development"`
}

func (c AppConfig) IsProduction() bool {
	return c.Env == ModeProduction
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"localhost"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"identity.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type MailConfig struct {
	// Driver "log" records messages instead of sending them, for local
	// development without an SMTP server.
	Driver       string `env:"DRIVER" envDefault:"smtp"`
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress  string `env:"FROM_ADDRESS" envDefault:"notify@localjobs.app"`
	FromName     string `env:"FROM_NAME" envDefault:"LocalJobs"`
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

type AuthConfig struct {
	MinLength      int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	RequireUpper   bool `env:"PASSWORD_REQUIRE_UPPER" envDefault:"true"`
	RequireLower   bool `env:"PASSWORD_REQUIRE_LOWER" envDefault:"true"`
	RequireNumber  bool `env:"PASSWORD_REQUIRE_NUMBER" envDefault:"true"`
	RequireSpecial bool `env:"PASSWORD_REQUIRE_SPECIAL" envDefault:"false"`
	BcryptCost     int  `env:"BCRYPT_COST" envDefault:"10"`
}

type VerificationConfig struct {
	OTPLength         int           `env:"OTP_LENGTH" envDefault:"6"`
	OTPExpiry         time.Duration `env:"OTP_EXPIRY" envDefault:"10m"`
	OTPResendThrottle time.Duration `env:"OTP_RESEND_THROTTLE" envDefault:"30s"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	ResetTokenLength  int           `env:"RESET_TOKEN_LENGTH" envDefault:"24"`
	ResetExpiry       time.Duration `env:"RESET_EXPIRY" envDefault:"15m"`
	ResetThrottle     time.Duration `env:"RESET_THROTTLE" envDefault:"60s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
}

type RefreshTokenConfig struct {
	TokenLength     int           `env:"LENGTH" envDefault:"48"`
	Expiry          time.Duration `env:"EXPIRY" envDefault:"720h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`
}

type JWTConfig struct {
	SecretKey    string        `env:"SECRET_KEY"`
	AccessExpiry time.Duration `env:"ACCESS_EXPIRY" envDefault:"168h"`
	Issuer       string        `env:"ISSUER" envDefault:"localjobs"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
