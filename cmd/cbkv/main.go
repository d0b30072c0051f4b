package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	couchbase "github.com/tomap/couchbase-net-client"
	"github.com/tomap/couchbase-net-client/operations"
)

var rootCmd = &cobra.Command{
	Use:   "cbkv",
	Short: "A command-line key-value client for Couchbase memcached buckets",
}

func init() {
	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("log-level", "warn", "the log level to run at")
	configFlags.String("connstr", "couchbase://localhost", "the cluster connection string")
	configFlags.String("user", "Administrator", "the couchbase server username")
	configFlags.String("pass", "password", "the couchbase server password")
	configFlags.String("bucket", "default", "the bucket to operate on")
	configFlags.Duration("timeout", 2500*time.Millisecond, "per-operation timeout")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("cbkv")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(incrCmd)
	rootCmd.AddCommand(decrCmd)
	rootCmd.AddCommand(touchCmd)
}

func getLogger() *zap.Logger {
	logLevel := zap.NewAtomicLevel()
	parsedLogLevel, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		parsedLogLevel = zapcore.WarnLevel
	}
	logLevel.SetLevel(parsedLogLevel)

	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stderr), logLevel)

	return zap.New(core)
}

// withBucket runs one keyed command against the configured bucket and
// tears everything down afterwards.
func withBucket(fn func(ctx context.Context, bucket *couchbase.Bucket) error) error {
	logger := getLogger()
	defer func() {
		_ = logger.Sync()
	}()

	cluster, err := couchbase.Connect(viper.GetString("connstr"), couchbase.ClusterOptions{
		Username:         viper.GetString("user"),
		Password:         viper.GetString("pass"),
		Logger:           logger,
		OperationTimeout: viper.GetDuration("timeout"),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = cluster.Close()
	}()

	bucket, err := cluster.Bucket(viper.GetString("bucket"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// routing needs a first config snapshot before any key resolves
	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	if err := bucket.WaitUntilReady(waitCtx); err != nil {
		return err
	}

	return fn(ctx, bucket)
}

func printResult(status string, cas uint64) {
	fmt.Printf("%s (cas %d)\n", status, cas)
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBucket(func(ctx context.Context, bucket *couchbase.Bucket) error {
			result, err := bucket.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("get failed: %s", result.Status)
			}

			fmt.Printf("%s\n", result.Value.Content)
			return nil
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags, _ := cmd.Flags().GetUint32("flags")
		expiry, _ := cmd.Flags().GetUint32("expiry")

		return withBucket(func(ctx context.Context, bucket *couchbase.Bucket) error {
			result, err := bucket.Upsert(ctx, args[0], []byte(args[1]), flags, expiry)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("set failed: %s", result.Status)
			}

			printResult("stored", result.Cas)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBucket(func(ctx context.Context, bucket *couchbase.Bucket) error {
			result, err := bucket.Remove(ctx, args[0], 0)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("delete failed: %s", result.Status)
			}

			printResult("deleted", result.Cas)
			return nil
		})
	},
}

func runCounter(cmd *cobra.Command, key string, decrement bool) error {
	delta, _ := cmd.Flags().GetUint64("delta")
	initial, _ := cmd.Flags().GetUint64("initial")
	expiry, _ := cmd.Flags().GetUint32("expiry")
	noCreate, _ := cmd.Flags().GetBool("no-create")
	if noCreate {
		expiry = operations.NoCreateExpiry
	}

	return withBucket(func(ctx context.Context, bucket *couchbase.Bucket) error {
		var result operations.OperationResult[uint64]
		var err error
		if decrement {
			result, err = bucket.DecrementBy(ctx, key, delta, initial, expiry)
		} else {
			result, err = bucket.IncrementBy(ctx, key, delta, initial, expiry)
		}
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("counter failed: %s", result.Status)
		}

		fmt.Printf("%d\n", result.Value)
		return nil
	})
}

var incrCmd = &cobra.Command{
	Use:   "incr <key>",
	Short: "Increment a counter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCounter(cmd, args[0], false)
	},
}

var decrCmd = &cobra.Command{
	Use:   "decr <key>",
	Short: "Decrement a counter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCounter(cmd, args[0], true)
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch <key>",
	Short: "Update a document's expiry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expiry, _ := cmd.Flags().GetUint32("expiry")

		return withBucket(func(ctx context.Context, bucket *couchbase.Bucket) error {
			result, err := bucket.Touch(ctx, args[0], expiry)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("touch failed: %s", result.Status)
			}

			printResult("touched", result.Cas)
			return nil
		})
	},
}

func init() {
	setCmd.Flags().Uint32("flags", 0, "document flags to store")
	setCmd.Flags().Uint32("expiry", 0, "document expiry in seconds, 0 for none")

	for _, counterCmd := range []*cobra.Command{incrCmd, decrCmd} {
		counterCmd.Flags().Uint64("delta", couchbase.DefaultCounterDelta, "amount to adjust by")
		counterCmd.Flags().Uint64("initial", couchbase.DefaultCounterInitial, "value to seed a missing counter with")
		counterCmd.Flags().Uint32("expiry", couchbase.DefaultCounterExpiry, "expiry applied when seeding")
		counterCmd.Flags().Bool("no-create", false, "fail instead of seeding a missing counter")
	}

	touchCmd.Flags().Uint32("expiry", 0, "new expiry in seconds, 0 for none")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
