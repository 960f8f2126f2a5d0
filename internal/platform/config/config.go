package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates per-concern configuration structs so components receive
// explicit values instead of reading ambient globals.
type Config struct {
	Server     Server
	Postgres   Postgres
	Redis      Redis
	Kafka      Kafka
	SMTP       SMTP
	Election   Election
	Credential Credential
	Capability Capability
	Ballot     Ballot
	Admin      Admin
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Postgres holds the relational store connection settings.
type Postgres struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Redis holds connection settings for the capability revocation list.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds audit pipeline settings. Empty brokers disable the Kafka sink.
type Kafka struct {
	Brokers    string
	AuditTopic string
}

// SMTP holds outbound mail gateway settings. Empty host selects the logging
// mailer for local development.
type SMTP struct {
	Host string
	Port int
	From string
}

// Election defines the voting window consulted by every handshake and cast.
type Election struct {
	Start time.Time
	End   time.Time
}

// Credential tunes issuance and distribution.
type Credential struct {
	Length         int
	MaxGenAttempts int
	MaxResends     int
	BatchSize      int
	BatchDelay     time.Duration
	// SweepInterval is how often the distributor looks for undelivered
	// credentials between full runs.
	SweepInterval time.Duration
}

// Capability tunes the signed assertions minted by the handshake.
type Capability struct {
	SigningKey       string
	Issuer           string
	SessionTTL       time.Duration
	AuthenticatedTTL time.Duration
}

// Ballot carries the server-side salt folded into every integrity hash.
type Ballot struct {
	VoteSalt string
}

// Admin guards the administrative endpoints. TokenHash is a bcrypt hash of
// the expected X-Admin-Token value.
type Admin struct {
	TokenHash string
}

// FromEnv builds the full configuration from environment variables so main
// stays lean. A .env file is loaded first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Server: Server{
			Addr:            envString("VOTE_ADDR", ":8080"),
			ShutdownTimeout: envDuration("VOTE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			DSN:          os.Getenv("VOTE_POSTGRES_DSN"),
			MaxOpenConns: envInt("VOTE_POSTGRES_MAX_OPEN", 25),
			MaxIdleConns: envInt("VOTE_POSTGRES_MAX_IDLE", 5),
		},
		Redis: Redis{
			URL:          os.Getenv("VOTE_REDIS_URL"),
			PoolSize:     envInt("VOTE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("VOTE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("VOTE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("VOTE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("VOTE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    os.Getenv("VOTE_KAFKA_BROKERS"),
			AuditTopic: envString("VOTE_KAFKA_AUDIT_TOPIC", "vote.audit"),
		},
		SMTP: SMTP{
			Host: os.Getenv("VOTE_SMTP_HOST"),
			Port: envInt("VOTE_SMTP_PORT", 587),
			From: envString("VOTE_SMTP_FROM", "elections@example.org"),
		},
		Election: Election{
			Start: envTime("VOTE_ELECTION_START"),
			End:   envTime("VOTE_ELECTION_END"),
		},
		Credential: Credential{
			Length:         envInt("VOTE_CREDENTIAL_LENGTH", 8),
			MaxGenAttempts: envInt("VOTE_CREDENTIAL_MAX_GEN_ATTEMPTS", 10),
			MaxResends:     envInt("VOTE_CREDENTIAL_MAX_RESENDS", 3),
			BatchSize:      envInt("VOTE_CREDENTIAL_BATCH_SIZE", 50),
			BatchDelay:     envDuration("VOTE_CREDENTIAL_BATCH_DELAY", time.Minute),
			SweepInterval:  envDuration("VOTE_CREDENTIAL_SWEEP_INTERVAL", 5*time.Minute),
		},
		Capability: Capability{
			SigningKey:       envString("VOTE_CAPABILITY_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:           envString("VOTE_CAPABILITY_ISSUER", "cyvote"),
			SessionTTL:       envDuration("VOTE_CAPABILITY_SESSION_TTL", 5*time.Minute),
			AuthenticatedTTL: envDuration("VOTE_CAPABILITY_AUTH_TTL", 15*time.Minute),
		},
		Ballot: Ballot{
			VoteSalt: envString("VOTE_BALLOT_SALT", "dev-vote-salt-change-in-production"),
		},
		Admin: Admin{
			TokenHash: os.Getenv("VOTE_ADMIN_TOKEN_HASH"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envTime(key string) time.Time {
	if v := os.Getenv(key); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
