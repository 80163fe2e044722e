package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authfacade/internal/flagx"
	"github.com/dmitrijs2005/authfacade/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept both "30s" strings and integer nanoseconds.
type JsonConfig struct {
	DatabaseDSN          string         `json:"database_dsn"`
	HashIterationCount   int            `json:"hash_iteration_count"`
	LogLevel             string         `json:"log_level"`
	OperationTimeout     timex.Duration `json:"operation_timeout"`
	LegacyS3Bucket       string         `json:"legacy_s3_bucket"`
	LegacyS3Prefix       string         `json:"legacy_s3_prefix"`
	LegacyS3Region       string         `json:"legacy_s3_region"`
	LegacyS3BaseEndpoint string         `json:"legacy_s3_base_endpoint"`
	LegacyS3RootUser     string         `json:"legacy_s3_root_user"`
	LegacyS3RootPassword string         `json:"legacy_s3_root_password"`
	OtelEndpoint         string         `json:"otel_endpoint"`
}

// parseJson loads configuration values from the file named by -c/-config.
// Only keys present in the file override the current values. An unreadable
// file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{
		DatabaseDSN:          config.DatabaseDSN,
		HashIterationCount:   config.HashIterationCount,
		LogLevel:             config.LogLevel,
		OperationTimeout:     timex.Duration{Duration: config.OperationTimeout},
		LegacyS3Bucket:       config.LegacyS3Bucket,
		LegacyS3Prefix:       config.LegacyS3Prefix,
		LegacyS3Region:       config.LegacyS3Region,
		LegacyS3BaseEndpoint: config.LegacyS3BaseEndpoint,
		LegacyS3RootUser:     config.LegacyS3RootUser,
		LegacyS3RootPassword: config.LegacyS3RootPassword,
		OtelEndpoint:         config.OtelEndpoint,
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.HashIterationCount = c.HashIterationCount
	config.LogLevel = c.LogLevel
	config.OperationTimeout = c.OperationTimeout.Duration
	config.LegacyS3Bucket = c.LegacyS3Bucket
	config.LegacyS3Prefix = c.LegacyS3Prefix
	config.LegacyS3Region = c.LegacyS3Region
	config.LegacyS3BaseEndpoint = c.LegacyS3BaseEndpoint
	config.LegacyS3RootUser = c.LegacyS3RootUser
	config.LegacyS3RootPassword = c.LegacyS3RootPassword
	config.OtelEndpoint = c.OtelEndpoint
}
