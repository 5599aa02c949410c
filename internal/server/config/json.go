package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/songletters/internal/flagx"
	"github.com/dmitrijs2005/songletters/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// strings such as "2s" or integer nanoseconds. Absent keys leave the
// current value untouched.
type JsonConfig struct {
	HTTPAddr              string          `json:"http_addr"`
	DatabaseDSN           string          `json:"database_dsn"`
	ProxyURL              string          `json:"proxy_url"`
	ProxyToken            string          `json:"proxy_token"`
	LocalDSN              string          `json:"local_dsn"`
	S3AccessKey           string          `json:"s3_access_key"`
	S3SecretKey           string          `json:"s3_secret_key"`
	S3Region              string          `json:"s3_region"`
	S3BaseEndpoint        string          `json:"s3_base_endpoint"`
	SecretKey             string          `json:"secret_key"`
	TierTimeout           *timex.Duration `json:"tier_timeout"`
	CacheCapacity         *int            `json:"cache_capacity"`
	MergeMaxAttempts      *int            `json:"merge_max_attempts"`
	MergeBackoff          *timex.Duration `json:"merge_backoff"`
	ReconcileInterval     *timex.Duration `json:"reconcile_interval"`
	DeviceChangeThreshold *int            `json:"device_change_threshold"`
	LongAbsence           *timex.Duration `json:"long_absence"`
}

// parseJson overlays the file named by -c/-config. A missing or invalid
// file panics: a server started with a config it cannot read should not
// come up on defaults.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigFileFlag(args)
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.ProxyURL, c.ProxyURL)
	setString(&config.ProxyToken, c.ProxyToken)
	setString(&config.LocalDSN, c.LocalDSN)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.SecretKey, c.SecretKey)

	if c.TierTimeout != nil {
		config.TierTimeout = c.TierTimeout.Duration
	}
	if c.CacheCapacity != nil {
		config.CacheCapacity = *c.CacheCapacity
	}
	if c.MergeMaxAttempts != nil {
		config.MergeMaxAttempts = *c.MergeMaxAttempts
	}
	if c.MergeBackoff != nil {
		config.MergeBackoff = c.MergeBackoff.Duration
	}
	if c.ReconcileInterval != nil {
		config.ReconcileInterval = c.ReconcileInterval.Duration
	}
	if c.DeviceChangeThreshold != nil {
		config.DeviceChangeThreshold = *c.DeviceChangeThreshold
	}
	if c.LongAbsence != nil {
		config.LongAbsence = c.LongAbsence.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
