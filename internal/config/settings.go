package config

import (
	"github.com/spf13/viper"
)

// Defaults for settings not present in the config file.
const (
	DefaultDatabasePath = "~/.local/share/tally/tally.db"
	DefaultBatchWorkers = 4
	DefaultPreviewSize  = 25
	DefaultSampleSize   = 100
)

// DatabasePath returns the SQLite database path, with ~ and environment
// variables expanded.
func DatabasePath() string {
	path := viper.GetString("database.path")
	if path == "" {
		path = DefaultDatabasePath
	}
	return ExpandPath(path)
}

// BatchWorkers returns the number of concurrent workers for batch
// categorization runs.
func BatchWorkers() int {
	if n := viper.GetInt("categorize.workers"); n > 0 {
		return n
	}
	return DefaultBatchWorkers
}

// PreviewSize bounds the matched-transaction preview in rule test reports.
func PreviewSize() int {
	if n := viper.GetInt("rules.preview_size"); n > 0 {
		return n
	}
	return DefaultPreviewSize
}

// SampleSize bounds the recent-transaction window used when testing a rule
// without an explicit sample.
func SampleSize() int {
	if n := viper.GetInt("rules.sample_size"); n > 0 {
		return n
	}
	return DefaultSampleSize
}
