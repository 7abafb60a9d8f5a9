package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Engine modes
const (
	EngineModeExec = "exec"
	EngineModeHTTP = "http"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort     string
	DefaultProject string

	// Workspaces
	DataDir  string
	ModelExt string

	// Database; empty disables job history
	DatabaseURL string

	// Engine
	EngineMode    string
	EngineBinary  string
	EngineURL     string
	EngineTimeout time.Duration

	// Proving parameters
	ParamsPath   string
	ParamsSource string
	AWSRegion    string

	// Judge and run profile
	RunProfile     string
	JudgeThreshold float64

	// Settlement
	SettlementURL        string
	SettlementRPCURL     string
	SettlementContract   string
	SettlementPrivateKey string
	SettlementChainID    int64

	// Observability
	SentryDSN string
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, after applying a .env file if present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv reads configuration from environment variables only
func FromEnv() (*Config, error) {
	timeout, err := getEnvAsDuration("ENGINE_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	threshold, err := getEnvAsFloat("JUDGE_THRESHOLD", 0.1)
	if err != nil {
		return nil, err
	}
	chainID, err := getEnvAsInt64("SETTLEMENT_CHAIN_ID", 0)
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("DATA_DIR", "./data")
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", getEnv("PORT", "8080")),
		DefaultProject: getEnv("DEFAULT_PROJECT", "baby_gaia_2d"),

		DataDir:  dataDir,
		ModelExt: strings.TrimPrefix(getEnv("MODEL_EXT", "onnx"), "."),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		EngineMode:    strings.ToLower(getEnv("ENGINE_MODE", EngineModeExec)),
		EngineBinary:  getEnv("ENGINE_BINARY", "ezkl"),
		EngineURL:     getEnv("ENGINE_URL", ""),
		EngineTimeout: timeout,

		ParamsPath:   getEnv("PARAMS_PATH", dataDir+"/kzg.params"),
		ParamsSource: getEnv("PARAMS_SOURCE", ""),
		AWSRegion:    getEnv("AWS_REGION", ""),

		RunProfile:     getEnv("RUN_PROFILE", ""),
		JudgeThreshold: threshold,

		SettlementURL:        getEnv("SETTLEMENT_URL", ""),
		SettlementRPCURL:     getEnv("SETTLEMENT_RPC_URL", ""),
		SettlementContract:   getEnv("SETTLEMENT_CONTRACT", ""),
		SettlementPrivateKey: getEnv("SETTLEMENT_PRIVATE_KEY", ""),
		SettlementChainID:    chainID,

		SentryDSN: getEnv("SENTRY_DSN", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}, nil
}

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	switch c.EngineMode {
	case EngineModeExec:
		if c.EngineBinary == "" {
			return errors.New("ENGINE_BINARY is required in exec mode")
		}
	case EngineModeHTTP:
		if c.EngineURL == "" {
			return errors.New("ENGINE_URL is required in http mode")
		}
	default:
		return fmt.Errorf("unknown ENGINE_MODE %q", c.EngineMode)
	}
	if c.DataDir == "" {
		return errors.New("DATA_DIR is required")
	}
	if c.ParamsPath == "" {
		return errors.New("PARAMS_PATH is required")
	}
	if c.JudgeThreshold <= 0 {
		return errors.New("JUDGE_THRESHOLD must be positive")
	}
	if c.EngineTimeout < 0 {
		return errors.New("ENGINE_TIMEOUT must not be negative")
	}
	if c.SettlementRPCURL != "" {
		if c.SettlementContract == "" || c.SettlementPrivateKey == "" {
			return errors.New("SETTLEMENT_CONTRACT and SETTLEMENT_PRIVATE_KEY are required with SETTLEMENT_RPC_URL")
		}
		if c.SettlementChainID <= 0 {
			return errors.New("SETTLEMENT_CHAIN_ID must be positive with SETTLEMENT_RPC_URL")
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// OnChainSettlement reports whether wins are settled against the contract directly
func (c *Config) OnChainSettlement() bool {
	return c.SettlementRPCURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
