package config

import (
	"flag"

	"github.com/dmitrijs2005/songletters/internal/flagx"
)

// parseFlags overlays the short flags.
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-d string     PostgreSQL DSN of the primary store
//	-x string     proxy base URL
//	-k string     proxy shared token
//	-l string     local fallback DSN (sqlite://path or s3://bucket/prefix)
//	-s string     session token HMAC secret
//	-t duration   per-tier attempt timeout
//	-r duration   reconcile interval
//
// Arguments are first filtered with flagx.FilterArgs so -c and flags meant
// for other loaders do not trip the parser.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-x", "-k", "-l", "-s", "-t", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "primary database DSN")
	fs.StringVar(&config.ProxyURL, "x", config.ProxyURL, "proxy base URL")
	fs.StringVar(&config.ProxyToken, "k", config.ProxyToken, "proxy shared token")
	fs.StringVar(&config.LocalDSN, "l", config.LocalDSN, "local fallback DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "session token secret")
	fs.DurationVar(&config.TierTimeout, "t", config.TierTimeout, "per-tier timeout")
	fs.DurationVar(&config.ReconcileInterval, "r", config.ReconcileInterval, "reconcile interval")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
