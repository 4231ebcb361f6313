package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"
const STORAGE_TYPE_SQLITE StorageType = "sqlite"

type RetryPolicyType string

const RETRY_POLICY_FIXED RetryPolicyType = "fixed"
const RETRY_POLICY_EXPONENTIAL RetryPolicyType = "exponential"

type EncoderDecoderType string

const JSON_ENCODER_DECODER EncoderDecoderType = "JSON"

type Config struct {
	RedisConfig        RedisStorageConfig
	SqliteConfig       SqliteStorageConfig
	NatsConfig         NatsConfig
	EngineConfig       EngineConfig
	RetryConfig        RetryConfig
	LockConfig         LockConfig
	BusConfig          BusConfig
	HttpPort           int
	StorageType        StorageType
	EncoderDecoderType EncoderDecoderType
	LogLevel           string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

type SqliteStorageConfig struct {
	DSN string
}

type NatsConfig struct {
	URL     string
	Subject string
}

type EngineConfig struct {
	AdvanceWorkers    int
	AdvanceQueueSize  int
	MaxRetries        int
	RetryScanInterval time.Duration
	RetryScanBatch    int
	RecoveryInterval  time.Duration
	HttpCallTimeout   time.Duration
	ScriptTimeout     time.Duration
	RemoteCallTimeout time.Duration
}

type RetryConfig struct {
	Policy     RetryPolicyType
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

type LockConfig struct {
	// Timeout is how long a lease survives without a refresh before the sweeper removes it.
	Timeout         time.Duration
	CleanupInterval time.Duration
	// Wait bounds how long an advancing worker waits for a lease.
	Wait time.Duration
}

type BusConfig struct {
	Workers         int
	QueueSize       int
	PublishAttempts int
}

func Default() Config {
	return Config{
		RedisConfig: RedisStorageConfig{
			Addrs:     []string{"localhost:6379"},
			Namespace: "flowengine",
		},
		SqliteConfig: SqliteStorageConfig{DSN: "file:flowengine.db"},
		NatsConfig:   NatsConfig{Subject: "flowengine"},
		EngineConfig: DefaultEngineConfig(),
		RetryConfig: RetryConfig{
			Policy:     RETRY_POLICY_EXPONENTIAL,
			Initial:    time.Second,
			Max:        time.Minute,
			Multiplier: 2,
		},
		LockConfig: LockConfig{
			Timeout:         time.Minute,
			CleanupInterval: 30 * time.Second,
			Wait:            10 * time.Second,
		},
		BusConfig: BusConfig{
			Workers:         4,
			QueueSize:       1000,
			PublishAttempts: 3,
		},
		HttpPort:           8080,
		StorageType:        STORAGE_TYPE_INMEM,
		EncoderDecoderType: JSON_ENCODER_DECODER,
		LogLevel:           "info",
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AdvanceWorkers:    8,
		AdvanceQueueSize:  1000,
		MaxRetries:        3,
		RetryScanInterval: time.Second,
		RetryScanBatch:    100,
		RecoveryInterval:  10 * time.Second,
		HttpCallTimeout:   30 * time.Second,
		ScriptTimeout:     5 * time.Second,
		RemoteCallTimeout: 30 * time.Minute,
	}
}
