package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/cedar/lib/journal"
	"github.com/ValentinKolb/cedar/lib/kv"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the store configuration flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "dir"
	cmd.PersistentFlags().String(key, ".", WrapString("Directory holding the journal and snapshot files"))

	key = "name"
	cmd.PersistentFlags().String(key, "cedar", WrapString("Store name, namespaces the on-disk files"))

	key = "fsync"
	cmd.PersistentFlags().String(key, "everysec", WrapString("Journal fsync policy (always, everysec)"))

	key = "snapshot-interval"
	cmd.PersistentFlags().Duration(key, 90*time.Second, WrapString("Automatic background snapshot interval (negative to disable)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("cedar")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetStoreOptions reads the store configuration from viper
func GetStoreOptions() (*kv.Options, error) {
	opts := kv.DefaultOptions()
	opts.Dir = viper.GetString("dir")
	opts.Name = viper.GetString("name")
	opts.SnapshotInterval = viper.GetDuration("snapshot-interval")

	switch viper.GetString("fsync") {
	case "always":
		opts.Sync = journal.SyncAlways
	case "everysec", "":
		opts.Sync = journal.SyncEverySecond
	default:
		return nil, fmt.Errorf("invalid fsync policy %q (must be always or everysec)", viper.GetString("fsync"))
	}

	return opts, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
