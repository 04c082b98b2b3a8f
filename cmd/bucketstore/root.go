package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bucketstore",
	Short: "Inspect and maintain a bucket store",
	Long: `bucketstore operates on a bucket store: a persistent cache that packs
entries into rows by hashing their keys into buckets. Rows live in a bbolt
database by default; --backend selects a directory of row files, an S3 bucket
or a GCS bucket instead.

Every flag can also be set in a config file (bucketstore.yaml in the working
directory or $HOME) or through BUCKETSTORE_* environment variables.

Examples:
  # Store an entry that expires in an hour
  bucketstore put session:42 '{"user":7}' --ttl 1h

  # Read it back
  bucketstore get session:42

  # Remove expired entries and print the collected metrics
  bucketstore purge --metrics gometrics

  # Use rows stored in S3
  bucketstore get session:42 --backend s3 --bucket my-cache --prefix prod`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if viper.GetString("metrics") == "gometrics" {
			metrics.WriteOnce(metricsRegistry, cmd.ErrOrStderr())
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default bucketstore.yaml)")
	flags.String("backend", "bolt", "row store (bolt, disk, s3, gcs)")
	flags.StringP("db", "d", "./bucketstore.db", "bbolt database file, or data directory for the disk backend")
	flags.String("bucket", "", "object storage bucket for the s3 and gcs backends")
	flags.String("prefix", "", "object key prefix for the s3 and gcs backends")
	flags.String("region", "", "AWS region for the s3 backend")
	flags.String("endpoint", "", "custom endpoint for S3-compatible services")
	flags.BoolP("verbose", "v", false, "enable verbose output")
	flags.String("key-mapper", "xxhash", "key to bucket mapping (xxhash, fnv)")
	flags.Uint32("mask", 0xfffffc00, "bucket id mask applied to key hashes")
	flags.String("marshaller", "msgpack", "entry marshaller (msgpack, gob)")
	flags.String("compression", "zstd", "row compression (zstd, gzip, none)")
	flags.Int("cache-size", 0, "rows cached in memory, 0 disables the cache")
	flags.Int("pool-size", 8, "maximum concurrent store connections")
	flags.String("metrics", "none", "metrics sink (none, log, gometrics)")
}

// initConfig binds flags to viper and reads the optional config file.
func initConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bucketstore")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}

	viper.SetEnvPrefix("bucketstore")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	return viper.BindPFlags(cmd.Flags())
}
