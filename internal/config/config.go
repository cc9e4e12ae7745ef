// Package config loads server settings from flags whose defaults come from
// the environment (optionally populated from a .env file).
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server holds everything cmd/server needs to start.
type Server struct {
	Addr            string
	HealthAddr      string
	DSN             string // empty selects the in-memory store
	JWTKey          []byte
	AccessTTL       time.Duration
	MaxBatch        int
	UploadDir       string
	MaxUploadBytes  int64
	RedisAddr       string // empty disables API rate limiting
	RateLimitPerMin int
	AMQPURL         string // empty disables activity events
	AMQPQueue       string
	CORSOrigins     []string
	Dev             bool
}

// ErrMissingJWTKey is returned when no signing key was configured.
var ErrMissingJWTKey = errors.New("missing jwt signing key (-jwt-key or JWT_KEY)")

// LoadServer reads .env (if present), then parses args over env-derived defaults.
func LoadServer(args []string) (*Server, error) {
	_ = godotenv.Load()

	var c Server
	var jwtKey, origins string
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&c.Addr, "addr", getenv("ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&c.HealthAddr, "health-addr", getenv("HEALTH_ADDR", ":8081"), "gRPC health listen address (empty disables)")
	fs.StringVar(&c.DSN, "dsn", getenv("DATABASE_DSN", ""), "PostgreSQL DSN (empty: in-memory store)")
	fs.StringVar(&jwtKey, "jwt-key", getenv("JWT_KEY", ""), "HS256 signing key (required)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", envDur("ACCESS_TTL", 24*time.Hour), "access token TTL")
	fs.IntVar(&c.MaxBatch, "max-batch", envInt("MAX_BATCH", 1000), "max reorder batch size")
	fs.StringVar(&c.UploadDir, "upload-dir", getenv("UPLOAD_DIR", "uploads"), "attachment directory")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", int64(envInt("MAX_UPLOAD_BYTES", 10<<20)), "max attachment size")
	fs.StringVar(&c.RedisAddr, "redis-addr", getenv("REDIS_ADDR", ""), "Redis address for API rate limiting")
	fs.IntVar(&c.RateLimitPerMin, "rate-limit", envInt("RATE_LIMIT_PER_MIN", 600), "requests per minute per client")
	fs.StringVar(&c.AMQPURL, "amqp-url", getenv("AMQP_URL", ""), "RabbitMQ URL for activity events")
	fs.StringVar(&c.AMQPQueue, "amqp-queue", getenv("AMQP_QUEUE", "taskboard.activity"), "activity queue name")
	fs.StringVar(&origins, "cors-origins", getenv("CORS_ORIGINS", "*"), "comma-separated allowed CORS origins")
	fs.BoolVar(&c.Dev, "dev", envBool("DEV", false), "development logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if jwtKey == "" {
		return nil, ErrMissingJWTKey
	}
	c.JWTKey = []byte(jwtKey)
	c.CORSOrigins = splitList(origins)
	return &c, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
