package config

import "time"

// StoreDriver choose conversation/message storage
type StoreDriver string

const (
	// StorePostgres pgx store (default)
	StorePostgres StoreDriver = "postgres"
	// StoreMongo mongo store, needs a replica set for transactions
	StoreMongo StoreDriver = "mongo"
	// StoreMemory in-process store for local runs
	StoreMemory StoreDriver = "memory"
)

// Chat definition chat_service YAML structure
type Chat struct {
	Port            string         `mapstructure:"port"`
	Store           StoreDriver    `mapstructure:"store"`
	PostgreSQL      DatabaseConfig `mapstructure:"pg"`
	MongoSQL        DatabaseConfig `mapstructure:"mongo"`
	ProfileDB       DatabaseConfig `mapstructure:"profile_db"`
	Redis           RedisConfig    `mapstructure:"redis"`
	Kafka           KafkaConfig    `mapstructure:"kafka"`
	MinIO           MinIOConfig    `mapstructure:"minio"`
	ProfileCacheTTL time.Duration  `mapstructure:"profile_cache_ttl"`
	JWTSecret       string         `mapstructure:"jwt_secret"`
	Pprof           bool           `mapstructure:"pprof"`
}

// ChatClient definition chat_client YAML structure
type ChatClient struct {
	ServerURL        string        `mapstructure:"server_url"`
	Token            string        `mapstructure:"token"`
	MemberID         string        `mapstructure:"member_id"`
	DeepLinkUserID   string        `mapstructure:"deep_link_user_id"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ReadMarkThrottle time.Duration `mapstructure:"read_mark_throttle"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	Redis            RedisConfig   `mapstructure:"redis"`
}

// RedisConfig definition redis setting. Addr empty means sentinel from .env
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
	Enabled bool   `mapstructure:"enabled"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition kafka setting, empty brokers disable publishing
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// MinIOConfig definition avatar bucket, empty endpoint disable presigning
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	BucketName    string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	URLExpiry     time.Duration `mapstructure:"url_expiry"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// ClientDefaults fill zero values of the client config
func (c ChatClient) ClientDefaults() ChatClient {
	if c.PollInterval <= 0 {
		c.PollInterval = 4 * time.Second
	}
	if c.ReadMarkThrottle <= 0 {
		c.ReadMarkThrottle = 3 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// ChatDefaults fill zero values of the server config
func (c Chat) ChatDefaults() Chat {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Store == "" {
		c.Store = StorePostgres
	}
	if c.ProfileCacheTTL <= 0 {
		c.ProfileCacheTTL = 5 * time.Minute
	}
	if c.MinIO.URLExpiry <= 0 {
		c.MinIO.URLExpiry = time.Hour
	}
	return c
}
