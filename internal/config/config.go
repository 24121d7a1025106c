package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Required variables are enforced by must()
// at startup; optional ones fall back to sensible defaults so a bare dev
// environment still boots.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign JWTs
	AccessTTLMin int    // access token time-to-live in minutes
	BcryptCost   int    // bcrypt cost for password hashing

	MaxRolesPerEvent int // cap on active registrations per subject per event (0 disables)

	LockTTL        time.Duration // how long a held lock survives without release
	LockAttempts   int           // acquisition attempts before giving up with Busy
	LockRetryDelay time.Duration // pause between acquisition attempts

	AMQPURL string // RabbitMQ connection URL; empty disables the push leg

	SMTPHost     string        // SMTP relay host; empty falls back to log-only mail
	SMTPPort     int           // SMTP relay port
	SMTPUser     string        // SMTP username (optional)
	SMTPPass     string        // SMTP password (optional)
	SMTPFrom     string        // From address on outgoing mail
	EmailTimeout time.Duration // per-send email timeout budget

	NotifyMaxConcurrent int // concurrent recipients per dispatch

	ReminderInterval time.Duration // how often the reminder sweep runs (0 disables)
	ReminderHorizon  time.Duration // how far ahead the sweep looks for starts
}

// Load reads configuration values from environment variables and returns
// a Config.  Missing required variables cause the program to exit with a
// fatal log message.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"), // empty allowed
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost:   mustInt("BCRYPT_COST"),

		MaxRolesPerEvent: envInt("MAX_ROLES_PER_EVENT", 3),

		LockTTL:        envDur("LOCK_TTL", 10*time.Second),
		LockAttempts:   envInt("LOCK_ATTEMPTS", 5),
		LockRetryDelay: envDur("LOCK_RETRY_DELAY", 100*time.Millisecond),

		AMQPURL: os.Getenv("AMQP_URL"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     envInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		SMTPFrom:     envStr("SMTP_FROM", "no-reply@localhost"),
		EmailTimeout: envDur("EMAIL_TIMEOUT", 10*time.Second),

		NotifyMaxConcurrent: envInt("NOTIFY_MAX_CONCURRENT", 8),

		ReminderInterval: envDur("REMINDER_INTERVAL", 15*time.Minute),
		ReminderHorizon:  envDur("REMINDER_HORIZON", 24*time.Hour),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
