package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/paykeeper/internal/flagx"
	"github.com/dmitrijs2005/paykeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "30s" style strings or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr    string `json:"http_addr"`
	DatabaseDSN string `json:"database_dsn"`
	SecretKey   string `json:"secret_key"`
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	SyncEndpoint     string         `json:"sync_endpoint"`
	SyncToken        string         `json:"sync_token"`
	SyncSharedSecret string         `json:"sync_shared_secret"`
	SyncSource       string         `json:"sync_source"`
	SyncTimeout      timex.Duration `json:"sync_timeout"`
	SyncMaxAttempts  int            `json:"sync_max_attempts"`
	SyncQueueSize    int            `json:"sync_queue_size"`

	CompanyName string `json:"company_name"`
	CompanyEIN  string `json:"company_ein"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson overlays the file named by -c / -config in args onto config.
// Keys missing from the file keep their current values. An unreadable or
// malformed file panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.SyncEndpoint, c.SyncEndpoint)
	setString(&config.SyncToken, c.SyncToken)
	setString(&config.SyncSharedSecret, c.SyncSharedSecret)
	setString(&config.SyncSource, c.SyncSource)
	setString(&config.CompanyName, c.CompanyName)
	setString(&config.CompanyEIN, c.CompanyEIN)

	if c.SyncTimeout.Duration > 0 {
		config.SyncTimeout = c.SyncTimeout.Duration
	}
	if c.SyncMaxAttempts > 0 {
		config.SyncMaxAttempts = c.SyncMaxAttempts
	}
	if c.SyncQueueSize > 0 {
		config.SyncQueueSize = c.SyncQueueSize
	}
}
