// Command bystander runs the task rotation engine from a terminal: a
// worker that fires response timeouts, and one-shot commands that stand
// in for the chat integration's inbound events.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree on v, which collects the config
// file, BYSTANDER_* variables and flags.
func newRootCmd(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix("BYSTANDER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "bystander",
		Short: "Hand a task to one teammate at a time until someone takes it",
		Long: `Bystander rotates a request through a shuffled list of candidates.
Each candidate is asked privately to accept or reject; if they reject, or
do not answer within the response timeout, the next one is asked. The
first acceptance is announced in the channel.

Requests live in Redis (--redis-addr) or, for a single process, in memory.
The user directory (channels, groups, inactive users) is read from a YAML
file given with --directory; messages are written to the log.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return readConfigFile(v)
		},
	}
	addPersistentFlags(root, v)
	root.AddCommand(
		workerCmd(v),
		createCmd(v),
		respondCmd(v),
		showCmd(v),
		jobsCmd(v),
	)
	return root
}

func addPersistentFlags(root *cobra.Command, v *viper.Viper) {
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (YAML)")
	flags.String("redis-addr", "", "Redis address; empty keeps everything in memory")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.StringP("directory", "d", "", "user directory file (YAML)")
	flags.Duration("request-ttl", 0, "how long an untouched request survives")
	flags.Duration("response-timeout", 0, "how long each candidate has to answer")
	flags.Int("concurrency", 0, "timeout jobs processed concurrently")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.Bool("json", false, "output JSON")

	bind := map[string]string{
		"config":           "config",
		"redis.addr":       "redis-addr",
		"redis.password":   "redis-password",
		"redis.db":         "redis-db",
		"directory":        "directory",
		"request_ttl":      "request-ttl",
		"response_timeout": "response-timeout",
		"concurrency":      "concurrency",
		"log.level":        "log-level",
		"log.format":       "log-format",
		"json":             "json",
	}
	for key, flag := range bind {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
}
