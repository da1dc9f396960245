// Package config provides configuration management for Reverie.
// It loads settings from environment variables with the REVERIE_ prefix
// and provides sensible defaults for all configuration options.
//
// An optional YAML file (-config reverie.yaml) can overlay the
// environment: only keys present in the file override env values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Reverie service.
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	LLM        LLMConfig
	Security   SecurityConfig
	Reflection ReflectionConfig
	Snapshot   SnapshotConfig
	Ingest     IngestConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 8084)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains persistence configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine: jsonl, sqlite, postgres (default: jsonl)
	DataPath      string // Path to data directory (default: ./data)
	PostgresDSN   string // Connection string when StorageEngine is postgres
}

// LLMConfig contains generative backend configuration.
type LLMConfig struct {
	OllamaURL     string        // Ollama API URL (default: http://localhost:11434)
	OllamaModel   string        // Model name (default: llama3.2:3b)
	Temperature   float64       // Sampling temperature (default: 0.2)
	TopP          float64       // Nucleus sampling top-p (default: 0.9)
	RepeatPenalty float64       // Repetition penalty (default: 1.1)
	Timeout       time.Duration // Generation request timeout (default: 30s)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// ReflectionConfig contains memory selection policy for reflection.
type ReflectionConfig struct {
	MaxMemories  int // Memories kept per modality window (default: 24)
	ReflectCount int // Memories handed to one reflection call (default: 5)
}

// SnapshotConfig contains the periodic store snapshot settings.
type SnapshotConfig struct {
	Enabled  bool          // Enable the background snapshotter (default: true)
	Interval time.Duration // Snapshot interval (default: 30s)
}

// IngestConfig contains the perception log tailer settings.
type IngestConfig struct {
	WatchPath string // JSONL file to tail for new memories (empty disables the watcher)
}

// LoadConfig loads configuration from environment variables with
// sensible defaults. All environment variables use the REVERIE_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("REVERIE_PORT", 8084),
			Host: getEnv("REVERIE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("REVERIE_STORAGE_ENGINE", "jsonl"),
			DataPath:      getEnv("REVERIE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("REVERIE_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			OllamaURL:     getEnv("REVERIE_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("REVERIE_OLLAMA_MODEL", "llama3.2:3b"),
			Temperature:   getEnvFloat("REVERIE_LLM_TEMPERATURE", 0.2),
			TopP:          getEnvFloat("REVERIE_LLM_TOP_P", 0.9),
			RepeatPenalty: getEnvFloat("REVERIE_LLM_REPEAT_PENALTY", 1.1),
			Timeout:       time.Duration(getEnvInt("REVERIE_LLM_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("REVERIE_SECURITY_MODE", "development"),
			APIToken:     getEnv("REVERIE_API_TOKEN", ""),
		},
		Reflection: ReflectionConfig{
			MaxMemories:  getEnvInt("REVERIE_MAX_MEMORIES", 24),
			ReflectCount: getEnvInt("REVERIE_REFLECT_COUNT", 5),
		},
		Snapshot: SnapshotConfig{
			Enabled:  getEnvBool("REVERIE_SNAPSHOT_ENABLED", true),
			Interval: time.Duration(getEnvInt("REVERIE_SNAPSHOT_INTERVAL_SECONDS", 30)) * time.Second,
		},
		Ingest: IngestConfig{
			WatchPath: getEnv("REVERIE_INGEST_WATCH", ""),
		},
	}, nil
}

// fileConfig mirrors Config with pointer fields so absent YAML keys
// keep their environment-derived values.
type fileConfig struct {
	Server struct {
		Port *int    `yaml:"port"`
		Host *string `yaml:"host"`
	} `yaml:"server"`
	Storage struct {
		StorageEngine *string `yaml:"engine"`
		DataPath      *string `yaml:"data_path"`
		PostgresDSN   *string `yaml:"postgres_dsn"`
	} `yaml:"storage"`
	LLM struct {
		OllamaURL      *string  `yaml:"ollama_url"`
		OllamaModel    *string  `yaml:"model"`
		Temperature    *float64 `yaml:"temperature"`
		TopP           *float64 `yaml:"top_p"`
		RepeatPenalty  *float64 `yaml:"repeat_penalty"`
		TimeoutSeconds *int     `yaml:"timeout_seconds"`
	} `yaml:"llm"`
	Security struct {
		SecurityMode *string `yaml:"mode"`
		APIToken     *string `yaml:"api_token"`
	} `yaml:"security"`
	Reflection struct {
		MaxMemories  *int `yaml:"max_memories"`
		ReflectCount *int `yaml:"reflect_count"`
	} `yaml:"reflection"`
	Snapshot struct {
		Enabled         *bool `yaml:"enabled"`
		IntervalSeconds *int  `yaml:"interval_seconds"`
	} `yaml:"snapshot"`
	Ingest struct {
		WatchPath *string `yaml:"watch_path"`
	} `yaml:"ingest"`
}

// ApplyFile overlays values from a YAML config file onto c.
// Keys absent from the file keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	setInt(&c.Server.Port, fc.Server.Port)
	setString(&c.Server.Host, fc.Server.Host)
	setString(&c.Storage.StorageEngine, fc.Storage.StorageEngine)
	setString(&c.Storage.DataPath, fc.Storage.DataPath)
	setString(&c.Storage.PostgresDSN, fc.Storage.PostgresDSN)
	setString(&c.LLM.OllamaURL, fc.LLM.OllamaURL)
	setString(&c.LLM.OllamaModel, fc.LLM.OllamaModel)
	setFloat(&c.LLM.Temperature, fc.LLM.Temperature)
	setFloat(&c.LLM.TopP, fc.LLM.TopP)
	setFloat(&c.LLM.RepeatPenalty, fc.LLM.RepeatPenalty)
	if fc.LLM.TimeoutSeconds != nil {
		c.LLM.Timeout = time.Duration(*fc.LLM.TimeoutSeconds) * time.Second
	}
	setString(&c.Security.SecurityMode, fc.Security.SecurityMode)
	setString(&c.Security.APIToken, fc.Security.APIToken)
	setInt(&c.Reflection.MaxMemories, fc.Reflection.MaxMemories)
	setInt(&c.Reflection.ReflectCount, fc.Reflection.ReflectCount)
	if fc.Snapshot.Enabled != nil {
		c.Snapshot.Enabled = *fc.Snapshot.Enabled
	}
	if fc.Snapshot.IntervalSeconds != nil {
		c.Snapshot.Interval = time.Duration(*fc.Snapshot.IntervalSeconds) * time.Second
	}
	setString(&c.Ingest.WatchPath, fc.Ingest.WatchPath)

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
