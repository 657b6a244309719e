package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Zego       ZegoConfig
	AWS        AWSConfig
	Session    SessionConfig
	Whiteboard WhiteboardConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/collab?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// ZegoConfig holds ZEGOCLOUD credentials used to issue join credentials.
// When AppID is 0 the server falls back to opaque random credentials.
type ZegoConfig struct {
	AppID         uint32
	ServerSecret  string
	JoinBaseURL   string
	TokenValidSec int64
}

// AWSConfig holds AWS credentials and the whiteboard archive bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ArchiveBucket   string
}

// SessionConfig controls the video session lifecycle.
type SessionConfig struct {
	Backend          string        // postgres | memory
	ProvisionTimeout time.Duration // bound on the live-media provisioning call
	MaxDuration      time.Duration // active sessions older than this are ended by the reaper; 0 disables
	ReaperInterval   time.Duration
	ArchiveOnEnd     bool
	// RosterSeed is upserted into the participant roster at startup (SESSION_ROSTER_SEED).
	RosterSeed []RosterEntry
}

// Participant roles accepted in a roster seed.
const (
	RoleTutor   = "tutor"
	RoleLearner = "learner"
)

// RosterEntry books one user onto one learning session.
type RosterEntry struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Role      string
}

// WhiteboardConfig controls whiteboard storage and save policy.
type WhiteboardConfig struct {
	Backend              string // postgres | redis | memory
	AllowUnversionedSave bool
	ClearCreates         bool
	MaxCanvasBytes       int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "collab"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Zego: ZegoConfig{
			AppID:         uint32(getEnvInt("ZEGO_APP_ID", 0)),
			ServerSecret:  getEnv("ZEGO_SERVER_SECRET", ""),
			JoinBaseURL:   strings.TrimRight(getEnv("ZEGO_JOIN_BASE_URL", "https://live.peerlearn.local/room"), "/"),
			TokenValidSec: int64(getEnvInt("ZEGO_TOKEN_VALID_SEC", 3600*6)),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:   getEnv("AWS_S3_WHITEBOARD_BUCKET", "collab-whiteboard-archive"),
		},
		Session: SessionConfig{
			Backend:          getEnv("SESSION_STORE_BACKEND", BackendPostgres),
			ProvisionTimeout: time.Duration(getEnvInt("SESSION_PROVISION_TIMEOUT_MS", 5000)) * time.Millisecond,
			MaxDuration:      time.Duration(getEnvInt("SESSION_MAX_DURATION_MIN", 180)) * time.Minute,
			ReaperInterval:   time.Duration(getEnvInt("SESSION_REAPER_INTERVAL_SEC", 60)) * time.Second,
			ArchiveOnEnd:     getEnvBool("SESSION_ARCHIVE_ON_END", true),
		},
		Whiteboard: WhiteboardConfig{
			Backend:              getEnv("WHITEBOARD_STORE_BACKEND", BackendPostgres),
			AllowUnversionedSave: getEnvBool("WHITEBOARD_ALLOW_UNVERSIONED_SAVE", true),
			ClearCreates:         getEnvBool("WHITEBOARD_CLEAR_CREATES", false),
			MaxCanvasBytes:       getEnvInt("WHITEBOARD_MAX_CANVAS_BYTES", 2<<20),
		},
	}
	roster, err := ParseRoster(getEnv("SESSION_ROSTER_SEED", ""))
	if err != nil {
		return nil, err
	}
	cfg.Session.RosterSeed = roster
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Session.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("config: unsupported SESSION_STORE_BACKEND %q", c.Session.Backend)
	}
	switch c.Whiteboard.Backend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("config: unsupported WHITEBOARD_STORE_BACKEND %q", c.Whiteboard.Backend)
	}
	if c.Session.ProvisionTimeout <= 0 {
		return fmt.Errorf("config: SESSION_PROVISION_TIMEOUT_MS must be positive")
	}
	if c.Whiteboard.MaxCanvasBytes <= 0 {
		return fmt.Errorf("config: WHITEBOARD_MAX_CANVAS_BYTES must be positive")
	}
	return nil
}

// ParseRoster reads comma-separated "session:user[:role]" entries. Role defaults to learner.
func ParseRoster(s string) ([]RosterEntry, error) {
	var entries []RosterEntry
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("config: roster entry %q: want session:user[:role]", item)
		}
		sessionID, err := uuid.Parse(parts[0])
		if err != nil {
			return nil, fmt.Errorf("config: roster entry %q: session id: %w", item, err)
		}
		userID, err := uuid.Parse(parts[1])
		if err != nil {
			return nil, fmt.Errorf("config: roster entry %q: user id: %w", item, err)
		}
		role := RoleLearner
		if len(parts) == 3 {
			role = parts[2]
		}
		if role != RoleTutor && role != RoleLearner {
			return nil, fmt.Errorf("config: roster entry %q: unknown role %q", item, role)
		}
		entries = append(entries, RosterEntry{SessionID: sessionID, UserID: userID, Role: role})
	}
	return entries, nil
}

// NeedsPostgres reports whether any configured store uses PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return c.Session.Backend == BackendPostgres || c.Whiteboard.Backend == BackendPostgres
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
