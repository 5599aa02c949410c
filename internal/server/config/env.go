package config

import "github.com/dmitrijs2005/songletters/internal/flagx"

func parseEnv(config *Config) {
	flagx.EnvString(&config.HTTPAddr, "LETTERS_HTTP_ADDR")
	flagx.EnvString(&config.DatabaseDSN, "LETTERS_DATABASE_DSN")
	flagx.EnvString(&config.ProxyURL, "LETTERS_PROXY_URL")
	flagx.EnvString(&config.ProxyToken, "LETTERS_PROXY_TOKEN")
	flagx.EnvString(&config.LocalDSN, "LETTERS_LOCAL_DSN")
	flagx.EnvString(&config.S3AccessKey, "LETTERS_S3_ACCESS_KEY")
	flagx.EnvString(&config.S3SecretKey, "LETTERS_S3_SECRET_KEY")
	flagx.EnvString(&config.S3Region, "LETTERS_S3_REGION")
	flagx.EnvString(&config.S3BaseEndpoint, "LETTERS_S3_BASE_ENDPOINT")
	flagx.EnvString(&config.SecretKey, "LETTERS_SECRET_KEY")
	flagx.EnvDuration(&config.TierTimeout, "LETTERS_TIER_TIMEOUT")
	flagx.EnvInt(&config.CacheCapacity, "LETTERS_CACHE_CAPACITY")
	flagx.EnvInt(&config.MergeMaxAttempts, "LETTERS_MERGE_MAX_ATTEMPTS")
	flagx.EnvDuration(&config.MergeBackoff, "LETTERS_MERGE_BACKOFF")
	flagx.EnvDuration(&config.ReconcileInterval, "LETTERS_RECONCILE_INTERVAL")
	flagx.EnvInt(&config.DeviceChangeThreshold, "LETTERS_DEVICE_CHANGE_THRESHOLD")
	flagx.EnvDuration(&config.LongAbsence, "LETTERS_LONG_ABSENCE")
}
