package config

import (
	"encoding/json"
	"os"
	"time"

	"flashvault/datamodel/partition"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Config represents the configuration for the flashvault application
type Config struct {
	// Default config file location
	configFile string

	// Serial settings define how the device session is established
	Serial struct {
		Port     string `json:"port"`
		BaudRate int    `json:"baudrate"`
	} `json:"serial"`

	// Transfer settings define the chunk/retry policy shared by backup and
	// restore. Durations are in milliseconds.
	Transfer struct {
		ChunkSize         uint64 `json:"chunk_size"`
		Retries           int    `json:"retries"`
		RetryBackoffMs    int    `json:"retry_backoff_ms"`
		TransferTimeoutMs int    `json:"transfer_timeout_ms"`
	} `json:"transfer"`

	Catalog struct {
		ArtifactsPath string `json:"artifacts"`
		IndexPath     string `json:"index"`
	} `json:"catalog"`

	// Partitions is the static name -> (offset, length) table for the device
	Partitions []partition.Descriptor `json:"partitions"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Serial.BaudRate = 921600

	cfg.Transfer.ChunkSize = 4096
	cfg.Transfer.Retries = 3
	cfg.Transfer.RetryBackoffMs = 250
	cfg.Transfer.TransferTimeoutMs = 3000

	cfg.Catalog.ArtifactsPath = "backups/artifacts"
	cfg.Catalog.IndexPath = "backups/index"

	cfg.Partitions = partition.Default().Descriptors()

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RetryBackoff returns the backoff as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Transfer.RetryBackoffMs) * time.Millisecond
}

// TransferTimeout returns the per-attempt timeout as a duration.
func (c *Config) TransferTimeout() time.Duration {
	return time.Duration(c.Transfer.TransferTimeoutMs) * time.Millisecond
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	// We'll marshall our structure to JSON and write it into a file
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	return nil
}
