package config

import (
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Postgres struct {
	DSN      string
	Host     string
	Port     string
	DB       string
	User     string
	Password string
	SSLMode  string
}

type Proxy struct {
	Secret  string
	MaxSkew time.Duration
}

type Identity struct {
	DefaultShop    string
	Placeholders   []string
	RequireSession bool
}

type Kafka struct {
	Brokers     []string
	Topic       string
	Workers     int
	Partitions  int
	Replication int
	// GroupID must be unique per replica so every instance sees every event.
	GroupID   string
	CacheSync bool
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Retry struct {
	Attempts     int
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

type Config struct {
	HTTPAddr        string
	APIKey          string
	CORSOrigins     []string
	CacheCap        int
	StorageTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string

	Pg       Postgres
	Proxy    Proxy
	Identity Identity
	Kafka    Kafka
	Breaker  Breaker
	Retry    Retry
}

// Load keeps the original API and fatals on error for simplicity in main().
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func load() (Config, error) {
	_ = godotenv.Load("env/.env")

	httpAddr := envDefault("HTTP_ADDR", ":8081")
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		httpAddr = ":" + port
	}

	cfg := Config{
		HTTPAddr:        httpAddr,
		APIKey:          strings.TrimSpace(os.Getenv("API_KEY")),
		CORSOrigins:     splitCSV(strings.TrimSpace(os.Getenv("CORS_ORIGINS"))),
		CacheCap:        envInt("CACHE_CAP", 1000),
		StorageTimeout:  envDurationMS("STORAGE_TIMEOUT", 5*time.Second),
		ShutdownTimeout: envDurationMS("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        envDefault("LOG_LEVEL", "info"),

		Pg: Postgres{
			DSN:      strings.TrimSpace(os.Getenv("DB_DSN")),
			Host:     strings.TrimSpace(os.Getenv("PG_HOST")),
			Port:     strings.TrimSpace(envDefault("PG_PORT", "5432")),
			DB:       strings.TrimSpace(os.Getenv("PG_DB")),
			User:     strings.TrimSpace(os.Getenv("PG_USER")),
			Password: strings.TrimSpace(os.Getenv("PG_PASSWORD")),
			SSLMode:  strings.TrimSpace(envDefault("PG_SSLMODE", "disable")),
		},

		Proxy: Proxy{
			Secret:  strings.TrimSpace(os.Getenv("SHOPIFY_API_SECRET")),
			MaxSkew: envDurationMS("PROXY_MAX_SKEW", 0),
		},

		Identity: Identity{
			DefaultShop:    strings.ToLower(strings.TrimSpace(os.Getenv("DEFAULT_SHOP"))),
			Placeholders:   splitCSV(envDefault("PLACEHOLDER_CUSTOMERS", "test-customer")),
			RequireSession: envBool("REQUIRE_SESSION_IDENTITY", false),
		},

		Kafka: Kafka{
			Brokers:     splitCSV(strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))),
			Topic:       envDefault("KAFKA_TOPIC", "saved-carts"),
			Workers:     envInt("KAFKA_WORKERS", 4),
			Partitions:  envInt("KAFKA_PARTITIONS", 3),
			Replication: envInt("KAFKA_REPLICATION", 1),
			GroupID:     envDefault("KAFKA_GROUP_ID", defaultGroupID()),
			CacheSync:   envBool("KAFKA_CACHE_SYNC", true),
		},

		Breaker: Breaker{
			Threshold:   envUint32("BREAKER_THRESHOLD", 5),
			OpenTimeout: envDurationMS("BREAKER_OPENTIMEOUT", 10*time.Second),
			MaxHalfOpen: envUint32("BREAKER_MAXHALFOPEN", 3),
		},

		Retry: Retry{
			Attempts:     envInt("RETRY_ATTEMPTS", 5),
			Base:         envDurationMS("RETRY_BASE", 100*time.Millisecond),
			Max:          envDurationMS("RETRY_MAX", 5*time.Second),
			JitterFactor: envFloat64("RETRY_JITTERFACTOR", 0.3),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.adjust()
	return cfg, nil
}

// placeholderSecrets are values seen in copy-pasted setups that must never reach production.
var placeholderSecrets = map[string]struct{}{
	"changeme": {},
	"secret":   {},
	"test":     {},
}

func (c Config) validate() error {
	var missing []string
	req := map[string]string{
		"SHOPIFY_API_SECRET": c.Proxy.Secret,
	}
	if c.Pg.DSN == "" {
		req["PG_HOST"] = c.Pg.Host
		req["PG_DB"] = c.Pg.DB
		req["PG_USER"] = c.Pg.User
		req["PG_PASSWORD"] = c.Pg.Password
	}
	for k, v := range req {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}

	if _, ok := placeholderSecrets[strings.ToLower(c.Proxy.Secret)]; ok {
		return &invalidEnvError{Key: "SHOPIFY_API_SECRET", Reason: "placeholder value"}
	}
	for _, p := range c.Identity.Placeholders {
		if strings.EqualFold(p, c.Identity.DefaultShop) {
			return &invalidEnvError{Key: "DEFAULT_SHOP", Reason: "matches a placeholder identity"}
		}
	}
	return nil
}

// adjust clamps values the rest of the program assumes are sane.
func (c *Config) adjust() {
	if c.CacheCap <= 0 {
		log.Printf("CACHE_CAP is %d, adjusting to 1", c.CacheCap)
		c.CacheCap = 1
	}
	if c.StorageTimeout <= 0 {
		log.Printf("STORAGE_TIMEOUT is %v, adjusting to 5s", c.StorageTimeout)
		c.StorageTimeout = 5 * time.Second
	}
	if c.Kafka.Workers <= 0 {
		log.Printf("KAFKA_WORKERS is %d, adjusting to 1", c.Kafka.Workers)
		c.Kafka.Workers = 1
	}
	if c.Kafka.Partitions <= 0 {
		c.Kafka.Partitions = 1
	}
	if c.Kafka.Replication <= 0 {
		c.Kafka.Replication = 1
	}
	if c.Retry.Attempts < 0 {
		log.Printf("RETRY_ATTEMPTS is %d, adjusting to 0", c.Retry.Attempts)
		c.Retry.Attempts = 0
	}
	if c.Retry.Base <= 0 {
		log.Printf("RETRY_BASE is %v, adjusting to 100ms", c.Retry.Base)
		c.Retry.Base = 100 * time.Millisecond
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
		c.Retry.Max = c.Retry.Base
	}
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

type invalidEnvError struct{ Key, Reason string }

func (e *invalidEnvError) Error() string {
	return "invalid env " + e.Key + ": " + e.Reason
}

// DSN returns DB_DSN as is, or builds a proper Postgres URL from PG_*, safely escaping user/pass.
func (c Config) DSN() string {
	if c.Pg.DSN != "" {
		return c.Pg.DSN
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Pg.User, c.Pg.Password),
		Host:   net.JoinHostPort(c.Pg.Host, c.Pg.Port),
		Path:   "/" + c.Pg.DB,
	}
	q := url.Values{}
	if c.Pg.SSLMode != "" {
		q.Set("sslmode", c.Pg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func defaultGroupID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "save-cart"
	}
	return "save-cart-" + host
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %t: %v", k, v, def, err)
		return def
	}
	return b
}

func envFloat64(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using default %.3f: %v", k, v, def, err)
		return def
	}
	return f
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
