package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot. It is loaded once at
// startup and handed to constructors; nothing mutates it afterwards.
type Config struct {
	App      AppConfig
	Discord  DiscordConfig
	Tickets  TicketConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Logger   LoggerConfig
	Ops      OpsConfig
}

// AppConfig identifies the running process.
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// DiscordConfig holds bot credentials and the guild-scoped ids the workflow
// operates on.
type DiscordConfig struct {
	Token          string
	AppID          string
	GuildID        string
	PanelChannelID string
	SupportRoleID  string
	LogChannelID   string
}

// TicketConfig controls the ticket workflow.
type TicketConfig struct {
	CategoriesFile string
	ReasonTimeout  time.Duration
	DeleteDelay    time.Duration
	RequestTimeout time.Duration
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr keeps the owner
// index in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures the ticket event sink. No brokers disables it.
type KafkaConfig struct {
	Brokers     []string
	TicketTopic string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Format      string // "json" (default) or "console"
	Development bool
}

// OpsConfig configures the operator HTTP API. An empty Port disables it.
type OpsConfig struct {
	Host      string
	Port      string
	JWTSecret string
}

// Load reads configuration from environment variables (and a .env file when
// present), applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	reasonTimeout, err := getEnvAsDuration("TICKET_REASON_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	deleteDelay, err := getEnvAsDuration("TICKET_DELETE_DELAY", 5*time.Second)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := getEnvAsDuration("DISCORD_REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "support-ticket-bot"),
			Env:     getEnv("APP_ENV", "development"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Discord: DiscordConfig{
			Token:          os.Getenv("DISCORD_TOKEN"),
			AppID:          os.Getenv("DISCORD_APP_ID"),
			GuildID:        os.Getenv("DISCORD_GUILD_ID"),
			PanelChannelID: os.Getenv("TICKET_PANEL_CHANNEL_ID"),
			SupportRoleID:  os.Getenv("SUPPORT_ROLE_ID"),
			LogChannelID:   os.Getenv("TICKET_LOG_CHANNEL_ID"),
		},
		Tickets: TicketConfig{
			CategoriesFile: os.Getenv("TICKET_CATEGORIES_FILE"),
			ReasonTimeout:  reasonTimeout,
			DeleteDelay:    deleteDelay,
			RequestTimeout: requestTimeout,
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
			TicketTopic: getEnv("KAFKA_TICKET_TOPIC", "support-tickets"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Ops: OpsConfig{
			Host:      getEnv("OPS_HTTP_HOST", "0.0.0.0"),
			Port:      os.Getenv("OPS_HTTP_PORT"),
			JWTSecret: os.Getenv("OPS_JWT_SECRET"),
		},
	}

	if err := cfg.Discord.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d DiscordConfig) validate() error {
	required := []struct{ key, val string }{
		{"DISCORD_TOKEN", d.Token},
		{"DISCORD_APP_ID", d.AppID},
		{"DISCORD_GUILD_ID", d.GuildID},
		{"TICKET_PANEL_CHANNEL_ID", d.PanelChannelID},
		{"SUPPORT_ROLE_ID", d.SupportRoleID},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Addr returns the ops HTTP bind address.
func (o OpsConfig) Addr() string {
	return fmt.Sprintf("%s:%s", o.Host, o.Port)
}

// Enabled reports whether the ops API should be started.
func (o OpsConfig) Enabled() bool {
	return o.Port != ""
}

// Enabled reports whether a Kafka sink is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return parsed, nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
