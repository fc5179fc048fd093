package config

import "time"

// APIConfig holds runtime configuration for the admin API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	TokenTTL           time.Duration
	SeedDemoUsers      bool
	CORSOrigins        string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":5000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://cryptoadmin:cryptoadmin@db:5432/cryptoadmin?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		TokenTTL:           GetDuration("JWT_TOKEN_TTL", 7*24*time.Hour),
		SeedDemoUsers:      GetString("SEED_DEMO_USERS", "true") == "true",
		CORSOrigins:        GetString("CORS_ALLOWED_ORIGINS", "*"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
