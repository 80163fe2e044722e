package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/flagx"
)

// FlagsWithValues lists every configuration flag that takes a value. The CLI
// uses it to tell configuration flags apart from command words.
var FlagsWithValues = []string{"-c", "-config", "-d", "-i", "-l", "-t", "-b", "-x", "-g", "-e", "-u", "-p"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-i int      target PBKDF2 iteration count
//	-l string   log level
//	-t int      operation timeout, seconds
//	-b string   legacy S3 bucket (enables migration)
//	-x string   legacy S3 key prefix
//	-g string   legacy S3 region
//	-e string   legacy S3 base endpoint
//	-u string   legacy S3 root user
//	-p string   legacy S3 root password
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-i", "-l", "-t", "-b", "-x", "-g", "-e", "-u", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.IntVar(&config.HashIterationCount, "i", config.HashIterationCount, "PBKDF2 iteration count for new hashes")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	timeout := fs.Int("t", int(config.OperationTimeout.Seconds()), "operation timeout (in seconds)")

	fs.StringVar(&config.LegacyS3Bucket, "b", config.LegacyS3Bucket, "legacy S3 bucket")
	fs.StringVar(&config.LegacyS3Prefix, "x", config.LegacyS3Prefix, "legacy S3 key prefix")
	fs.StringVar(&config.LegacyS3Region, "g", config.LegacyS3Region, "legacy S3 region")
	fs.StringVar(&config.LegacyS3BaseEndpoint, "e", config.LegacyS3BaseEndpoint, "legacy S3 base endpoint")
	fs.StringVar(&config.LegacyS3RootUser, "u", config.LegacyS3RootUser, "legacy S3 root user")
	fs.StringVar(&config.LegacyS3RootPassword, "p", config.LegacyS3RootPassword, "legacy S3 root password")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.OperationTimeout = time.Duration(*timeout) * time.Second
}
