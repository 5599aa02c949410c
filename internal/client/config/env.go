package config

import "github.com/dmitrijs2005/songletters/internal/flagx"

func parseEnv(cfg *Config) {
	flagx.EnvString(&cfg.ServerURL, "LETTERS_CLI_SERVER_URL")
	flagx.EnvString(&cfg.DatabasePath, "LETTERS_CLI_DATABASE_PATH")
	flagx.EnvDuration(&cfg.RequestTimeout, "LETTERS_CLI_REQUEST_TIMEOUT")
}
