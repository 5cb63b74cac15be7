package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Attendance    AttendanceConfig
	Geofence      GeofenceConfig
	Notifications NotificationsConfig
	Recap         RecapConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig tunes the recording engine: the late-arrival grace period,
// lock acquisition bounds and QR token lifetimes.
type AttendanceConfig struct {
	GracePeriod     time.Duration
	LockWait        time.Duration
	LockTTL         time.Duration
	TokenSecret     string
	TokenDefaultTTL time.Duration
	TokenMaxTTL     time.Duration
	// TokenWindowLead is how long before a session's scheduled start a
	// token may be generated.
	TokenWindowLead time.Duration
}

// GeofenceConfig bounds where a scan may originate. The gate is disabled when
// any coordinate is unset or the radius is not positive.
type GeofenceConfig struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// Enabled reports whether the proximity gate should run.
func (g GeofenceConfig) Enabled() bool {
	return g.RadiusMeters > 0 && (g.Latitude != 0 || g.Longitude != 0)
}

// NotificationsConfig tunes the attendance-recorded fan-out queue.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// RecapConfig governs cached read models and export behaviour.
type RecapConfig struct {
	CacheTTL       time.Duration
	RosterCacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		GracePeriod:     parseDuration(v.GetString("ATTENDANCE_GRACE_PERIOD"), 15*time.Minute),
		LockWait:        parseDuration(v.GetString("ATTENDANCE_LOCK_WAIT"), 5*time.Second),
		LockTTL:         parseDuration(v.GetString("ATTENDANCE_LOCK_TTL"), 10*time.Second),
		TokenSecret:     v.GetString("QR_TOKEN_SECRET"),
		TokenDefaultTTL: parseDuration(v.GetString("QR_TOKEN_DEFAULT_TTL"), 10*time.Minute),
		TokenMaxTTL:     parseDuration(v.GetString("QR_TOKEN_MAX_TTL"), 2*time.Hour),
		TokenWindowLead: parseDuration(v.GetString("QR_TOKEN_WINDOW_LEAD"), 15*time.Minute),
	}

	cfg.Geofence = GeofenceConfig{
		Latitude:     v.GetFloat64("GEOFENCE_LATITUDE"),
		Longitude:    v.GetFloat64("GEOFENCE_LONGITUDE"),
		RadiusMeters: v.GetFloat64("GEOFENCE_RADIUS_METERS"),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATIONS_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATIONS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), time.Second),
	}

	cfg.Recap = RecapConfig{
		CacheTTL:       parseDuration(v.GetString("RECAP_CACHE_TTL"), 5*time.Minute),
		RosterCacheTTL: parseDuration(v.GetString("ROSTER_CACHE_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "presensi")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_GRACE_PERIOD", "15m")
	v.SetDefault("ATTENDANCE_LOCK_WAIT", "5s")
	v.SetDefault("ATTENDANCE_LOCK_TTL", "10s")
	v.SetDefault("QR_TOKEN_SECRET", "dev_qr_secret")
	v.SetDefault("QR_TOKEN_DEFAULT_TTL", "10m")
	v.SetDefault("QR_TOKEN_MAX_TTL", "2h")
	v.SetDefault("QR_TOKEN_WINDOW_LEAD", "15m")

	v.SetDefault("GEOFENCE_LATITUDE", 0)
	v.SetDefault("GEOFENCE_LONGITUDE", 0)
	v.SetDefault("GEOFENCE_RADIUS_METERS", 0)

	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "1s")

	v.SetDefault("RECAP_CACHE_TTL", "5m")
	v.SetDefault("ROSTER_CACHE_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
