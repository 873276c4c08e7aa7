package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env         string `mapstructure:"env"`
	Port        int    `mapstructure:"port"`
	PublicURL   string `mapstructure:"public_url"`
	FrontendURL string `mapstructure:"frontend_url"`
	JWTSecret   string `mapstructure:"jwt_secret"`
}

type MongoConfig struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	ConnectTimeoutSecs int    `mapstructure:"connect_timeout_seconds"`
	OpTimeoutSecs      int    `mapstructure:"op_timeout_seconds"`
	// in-memory store instead of Mongo, for local runs
	Memory bool `mapstructure:"memory"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Pass    string `mapstructure:"password"`
	DB      int    `mapstructure:"db"`
	Prefix  string `mapstructure:"prefix"`
}

type EventsConfig struct {
	// kafka, nats or none
	Driver       string   `mapstructure:"driver"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	NATSURL      string   `mapstructure:"nats_url"`
	NATSStream   string   `mapstructure:"nats_stream"`
	NATSSubject  string   `mapstructure:"nats_subject"`
}

type UploadConfig struct {
	Dir                string `mapstructure:"dir"`
	MaxBytes           int64  `mapstructure:"max_bytes"`
	CompressAboveBytes int64  `mapstructure:"compress_above_bytes"`
	ImageMaxWidth      int    `mapstructure:"image_max_width"`
	JPEGQuality        int    `mapstructure:"jpeg_quality"`
	FFmpegPath         string `mapstructure:"ffmpeg_path"`
	// disk or s3
	Storage string `mapstructure:"storage"`
}

type S3Config struct {
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	Endpoint       string `mapstructure:"endpoint"`
	PublicRead     bool   `mapstructure:"public_read"`
	PresignTTLMins int    `mapstructure:"presign_ttl_minutes"`
}

type NotifyConfig struct {
	// comma separated: whatsapp, email, telegram
	Channels       []string `mapstructure:"channels"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	RatePerSecond  float64  `mapstructure:"rate_per_second"`
	Burst          int      `mapstructure:"burst"`
	WhatsAppNumber string   `mapstructure:"whatsapp_number"`
	WhatsAppBase   string   `mapstructure:"whatsapp_base"`
	WhatsAppFetch  bool     `mapstructure:"whatsapp_fetch"`
	BrevoAPIKey    string   `mapstructure:"brevo_api_key"`
	BrevoEndpoint  string   `mapstructure:"brevo_endpoint"`
	SenderEmail    string   `mapstructure:"sender_email"`
	SenderName     string   `mapstructure:"sender_name"`
	SupportEmail   string   `mapstructure:"support_email"`
	TelegramToken  string   `mapstructure:"telegram_token"`
	TelegramChatID int64    `mapstructure:"telegram_chat_id"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	SendBuffer           int   `mapstructure:"send_buffer"`
	TypingQuietMillis    int   `mapstructure:"typing_quiet_millis"`
}

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Events EventsConfig `mapstructure:"events"`
	Upload UploadConfig `mapstructure:"upload"`
	S3     S3Config     `mapstructure:"s3"`
	Notify NotifyConfig `mapstructure:"notify"`
	WS     WSConfig     `mapstructure:"ws"`

	// derived/timeouts
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	TypingQuiet    time.Duration
	NotifyTimeout  time.Duration
	MongoConnect   time.Duration
	MongoOpTimeout time.Duration
	PresignTTL     time.Duration
}

func (a AppConfig) PortString() string { return fmt.Sprintf("%d", a.Port) }

func (a AppConfig) IsDevelopment() bool { return a.Env != "production" }

// AdminLoginURL is the deep link put into notifications.
func (c *Config) AdminLoginURL() string {
	if c.App.Env == "production" && c.App.FrontendURL != "" {
		return strings.TrimRight(c.App.FrontendURL, "/") + "/adminlogin"
	}
	return "http://localhost:5173/#/adminlogin"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 5000)
	v.SetDefault("app.public_url", "http://localhost:5000")
	v.SetDefault("app.frontend_url", "http://localhost:5173")
	v.SetDefault("app.jwt_secret", "")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "haysquare")
	v.SetDefault("mongo.connect_timeout_seconds", 10)
	v.SetDefault("mongo.op_timeout_seconds", 5)
	v.SetDefault("mongo.memory", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "hay")

	v.SetDefault("events.driver", "none")
	v.SetDefault("events.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka_topic", "chat.messages")
	v.SetDefault("events.nats_url", "nats://localhost:4222")
	v.SetDefault("events.nats_stream", "CHAT")
	v.SetDefault("events.nats_subject", "chat.messages")

	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_bytes", 20*1024*1024)
	v.SetDefault("upload.compress_above_bytes", 1024*1024)
	v.SetDefault("upload.image_max_width", 1280)
	v.SetDefault("upload.jpeg_quality", 70)
	v.SetDefault("upload.ffmpeg_path", "ffmpeg")
	v.SetDefault("upload.storage", "disk")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.public_read", true)
	v.SetDefault("s3.presign_ttl_minutes", 60)

	v.SetDefault("notify.channels", []string{"whatsapp"})
	v.SetDefault("notify.timeout_seconds", 10)
	v.SetDefault("notify.rate_per_second", 2)
	v.SetDefault("notify.burst", 10)
	v.SetDefault("notify.whatsapp_number", "2349025479011")
	v.SetDefault("notify.whatsapp_base", "https://wa.me")
	v.SetDefault("notify.whatsapp_fetch", false)
	v.SetDefault("notify.brevo_api_key", "")
	v.SetDefault("notify.brevo_endpoint", "https://api.brevo.com/v3/smtp/email")
	v.SetDefault("notify.sender_email", "no-reply@haysquare.dev")
	v.SetDefault("notify.sender_name", "HaySquare Chat")
	v.SetDefault("notify.support_email", "")
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)

	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.typing_quiet_millis", 2000)
}

// Load reads .env (if any), then the optional config file at path, then the
// environment. MONGO_URI overrides mongo.uri and so on.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Events.KafkaBrokers = splitList(c.Events.KafkaBrokers)
	c.Notify.Channels = splitList(c.Notify.Channels)

	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.TypingQuiet = time.Duration(c.WS.TypingQuietMillis) * time.Millisecond
	c.NotifyTimeout = time.Duration(c.Notify.TimeoutSeconds) * time.Second
	c.MongoConnect = time.Duration(c.Mongo.ConnectTimeoutSecs) * time.Second
	c.MongoOpTimeout = time.Duration(c.Mongo.OpTimeoutSecs) * time.Second
	c.PresignTTL = time.Duration(c.S3.PresignTTLMins) * time.Minute

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// env values arrive as a single "a,b" element
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.App.Env == "production" && c.App.JWTSecret == "" {
		return errors.New("app.jwt_secret is required in production")
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be positive")
	}
	if c.WS.TypingQuietMillis <= 0 {
		return errors.New("ws.typing_quiet_millis must be positive")
	}
	switch c.Upload.Storage {
	case "disk":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3.bucket is required when upload.storage=s3")
		}
	default:
		return fmt.Errorf("unknown upload.storage %q", c.Upload.Storage)
	}
	switch c.Events.Driver {
	case "none", "kafka", "nats":
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}
	return nil
}
