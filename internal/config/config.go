package config // loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
)

// Config holds runtime configuration shared by the sso and traffic
// binaries. Each field corresponds to an environment variable; secrets
// are kept separate per token kind so a compromise of one does not
// cross-contaminate the others.
type Config struct {
	Env  string // application environment (dev/test/prod)
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	// JWTSecret signs access tokens and is shared by every mini-app so
	// they can verify bearers locally. RefreshSecret is known only to
	// the sso service. LaunchSecret and StudentSecret belong to the
	// launch-token handoff between apps.
	JWTSecret     string
	RefreshSecret string
	LaunchSecret  string
	StudentSecret string

	AccessTTLHours int
	RefreshTTLDays int
	StudentTTLMin  int
	BcryptCost     int

	// Bootstrap credentials for the sso super-admin, created on first
	// startup when no sso/admin account exists.
	AdminUsername string
	AdminPassword string

	// ServiceSecrets maps a pre-shared caller secret to the caller's
	// name. Resolution is static configuration, never a database
	// lookup, so provisioning works before the admin bootstrap runs.
	ServiceSecrets map[string]string

	QRRotateSeconds   int
	SessionMaxMinutes int
}

// LoadSSO reads configuration for the sso binary. Missing required
// variables abort startup.
func LoadSSO() Config {
	cfg := loadBase()
	cfg.RefreshSecret = must("SSO_REFRESH_SECRET")
	cfg.RefreshTTLDays = mustInt("REFRESH_TOKEN_TTL_DAYS")
	cfg.BcryptCost = mustInt("BCRYPT_COST")
	cfg.AdminUsername = must("SSO_ADMIN_USERNAME")
	cfg.AdminPassword = must("SSO_ADMIN_PASSWORD")
	cfg.ServiceSecrets = serviceSecrets()
	return cfg
}

// LoadTraffic reads configuration for the traffic binary.
func LoadTraffic() Config {
	cfg := loadBase()
	cfg.LaunchSecret = must("LAUNCH_TOKEN_SECRET")
	cfg.StudentSecret = must("STUDENT_SESSION_SECRET")
	cfg.StudentTTLMin = envInt("STUDENT_SESSION_TTL_MIN", 720)
	cfg.QRRotateSeconds = envInt("QR_ROTATE_SECONDS", 5)
	cfg.SessionMaxMinutes = envInt("SESSION_MAX_MINUTES", 90)
	return cfg
}

func loadBase() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("SSO_JWT_SECRET"),
		AccessTTLHours: envInt("ACCESS_TOKEN_TTL_HOURS", 24),
	}
}

// serviceSecrets builds the secret→caller map for the provisioning
// gateway from per-caller env vars. Unset callers are simply absent.
func serviceSecrets() map[string]string {
	out := make(map[string]string)
	for env, caller := range map[string]string{
		"SERVICES_SERVICE_SECRET": "services",
		"TRAFFIC_SERVICE_SECRET":  "traffic",
		"BOT_SERVICE_SECRET":      "bot",
	} {
		if v := os.Getenv(env); v != "" {
			out[v] = caller
		}
	}
	return out
}

// must retrieves a required environment variable or aborts startup.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is must() with integer conversion.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// envInt reads an optional integer variable with a default.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
