package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	HTTPPort string
	LogLevel string

	// TimescaleDB archive
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Ingestion pipeline
	ShardCount     int
	ShardQueueSize int

	// Archive batch writer tuning
	ArchiveBatchSize     int
	ArchiveFlushInterval time.Duration
	ArchiveChannelSize   int
	ReplayWindow         time.Duration

	// Tracker state
	OfflineTimeout time.Duration
	SweepInterval  time.Duration

	// Alert engine
	AlertDebounceWindow    time.Duration
	OverspeedHighRatio     float64
	OverspeedCriticalRatio float64

	// History analytics
	StopSpeedThresholdKmh float64
	StopMinDwell          time.Duration
	FleetTimezone         string

	// Broadcast hub
	ClientQueueSize  int
	SnapshotInterval time.Duration
	WriteTimeout     time.Duration
	PongTimeout      time.Duration

	// Upstream feeds
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	MQTTBroker   string
	MQTTClientID string

	// Auth
	AuthCacheTTL time.Duration
	ValidTokens  []string
}

func Load() *Config {
	return &Config{
		HTTPPort:               getEnv("HTTP_PORT", "8001"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "fleettrack_user"),
		DBPassword:             getEnv("DB_PASSWORD", "fleettrack_password"),
		DBName:                 getEnv("DB_NAME", "fleettrack"),
		DBMaxConns:             int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		ShardCount:             getEnvInt("SHARD_COUNT", 16),
		ShardQueueSize:         getEnvInt("SHARD_QUEUE_SIZE", 1024),
		ArchiveBatchSize:       getEnvInt("ARCHIVE_BATCH_SIZE", 500),
		ArchiveFlushInterval:   getEnvDuration("ARCHIVE_FLUSH_INTERVAL", 100*time.Millisecond),
		ArchiveChannelSize:     getEnvInt("ARCHIVE_CHANNEL_SIZE", 10000),
		ReplayWindow:           getEnvDuration("REPLAY_WINDOW", 24*time.Hour),
		OfflineTimeout:         getEnvDuration("OFFLINE_TIMEOUT", 5*time.Minute),
		SweepInterval:          getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		AlertDebounceWindow:    getEnvDuration("ALERT_DEBOUNCE_WINDOW", 5*time.Minute),
		OverspeedHighRatio:     getEnvFloat("OVERSPEED_HIGH_RATIO", 1.25),
		OverspeedCriticalRatio: getEnvFloat("OVERSPEED_CRITICAL_RATIO", 1.5),
		StopSpeedThresholdKmh:  getEnvFloat("STOP_SPEED_THRESHOLD_KMH", 2.0),
		StopMinDwell:           getEnvDuration("STOP_MIN_DWELL", 3*time.Minute),
		FleetTimezone:          getEnv("FLEET_TIMEZONE", "UTC"),
		ClientQueueSize:        getEnvInt("CLIENT_QUEUE_SIZE", 256),
		SnapshotInterval:       getEnvDuration("SNAPSHOT_INTERVAL", 5*time.Second),
		WriteTimeout:           getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		PongTimeout:            getEnvDuration("WS_PONG_TIMEOUT", 60*time.Second),
		KafkaBrokers:           splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:             getEnv("KAFKA_TOPIC", "tracker.positions"),
		KafkaGroupID:           getEnv("KAFKA_GROUP_ID", "fleettrack-core"),
		MQTTBroker:             getEnv("MQTT_BROKER", ""),
		MQTTClientID:           getEnv("MQTT_CLIENT_ID", "fleettrack-core"),
		AuthCacheTTL:           getEnvDuration("AUTH_CACHE_TTL", 5*time.Minute),
		ValidTokens:            splitNonEmpty(getEnv("VALID_TOKENS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
