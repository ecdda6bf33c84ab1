package config // package config loads application configuration from environment variables

import (
	"log"     // log reports configuration errors and halts execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Strings hold identifiers and secrets, ints hold
// durations and costs in the unit the variable name states.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign access tokens
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	ResetTTLMin    int    // password-reset token time-to-live in minutes
	BcryptCost     int    // bcrypt cost for password hashing
}

// Load reads configuration from the environment. Required variables are
// enforced by must(); in particular a missing JWT_SECRET aborts startup so
// the process never serves without a signing secret.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   intOr("ACCESS_TOKEN_TTL_MIN", 60),
		RefreshTTLDays: intOr("REFRESH_TOKEN_TTL_DAYS", 7),
		ResetTTLMin:    intOr("RESET_TOKEN_TTL_MIN", 60),
		BcryptCost:     intOr("BCRYPT_COST", 12),
	}
}

// CookieSecure reports whether the refresh cookie should carry the Secure
// attribute. Everything except the dev environment runs behind TLS.
func (c Config) CookieSecure() bool { return c.Env != "dev" }

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// intOr converts an optional environment variable to an int, falling back
// to def when unset. A present but malformed value is fatal.
func intOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
