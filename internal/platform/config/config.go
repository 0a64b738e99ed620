package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration for the clearing service.
type Server struct {
	Addr           string
	MultiPartition bool
	JWTSigningKey  string
	RedisURL       string
	DatabaseURL    string
	KafkaBrokers   []string
	KafkaTopic     string
}

// ComplianceCacheTTL bounds how long a holder's eligibility/denylist status
// may be served from cache. Approval-time checks tolerate at most this much
// staleness.
var ComplianceCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("TRANCHE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("TRANCHE_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("TRANCHE_KAFKA_TOPIC")
	if topic == "" {
		topic = "tranche.clearing.events"
	}

	var brokers []string
	if raw := os.Getenv("TRANCHE_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return Server{
		Addr:           addr,
		MultiPartition: os.Getenv("TRANCHE_MULTI_PARTITION") == "true",
		JWTSigningKey:  jwtSigningKey,
		RedisURL:       os.Getenv("TRANCHE_REDIS_URL"),
		DatabaseURL:    os.Getenv("TRANCHE_DATABASE_URL"),
		KafkaBrokers:   brokers,
		KafkaTopic:     topic,
	}
}
