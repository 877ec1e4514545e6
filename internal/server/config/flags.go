package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/flagx"
)

// serverFlags are the short flags parseFlags understands. Anything else on
// the command line is left for the caller.
var serverFlags = []string{
	"-a", "-d", "-s", "-l",
	"-u", "-p", "-b", "-g", "-e",
	"-x", "-k", "-m", "-o", "-t", "-n", "-q",
}

// parseFlags overlays command-line values onto config.
//
//	-a  HTTP bind address
//	-d  PostgreSQL DSN
//	-s  JWT HMAC secret
//	-l  log level
//	-u  S3 user        -p  S3 password   -b  S3 bucket
//	-g  S3 region      -e  S3 endpoint
//	-x  sync endpoint URL
//	-k  sync bearer token
//	-m  sync shared secret
//	-o  sync source name
//	-t  sync timeout, seconds
//	-n  sync max attempts
//	-q  sync queue size
//
// Invalid values panic, as a misconfigured payroll server must not start.
func parseFlags(config *Config, args []string) {
	filtered := flagx.FilterArgs(args, serverFlags)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to listen on")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "JWT secret key")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.SyncEndpoint, "x", config.SyncEndpoint, "tax remittance endpoint URL")
	fs.StringVar(&config.SyncToken, "k", config.SyncToken, "tax remittance bearer token")
	fs.StringVar(&config.SyncSharedSecret, "m", config.SyncSharedSecret, "tax remittance shared secret")
	fs.StringVar(&config.SyncSource, "o", config.SyncSource, "tax remittance source name")
	timeout := fs.Int("t", int(config.SyncTimeout.Seconds()), "tax remittance timeout (in seconds)")
	fs.IntVar(&config.SyncMaxAttempts, "n", config.SyncMaxAttempts, "tax remittance max automatic attempts")
	fs.IntVar(&config.SyncQueueSize, "q", config.SyncQueueSize, "tax remittance queue size")

	if err := fs.Parse(filtered); err != nil {
		panic(err)
	}

	config.SyncTimeout = time.Duration(*timeout) * time.Second
}
