package app

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/agentstation/seatwatch/pkg/constants"
)

// TestLoadConfig_Defaults verifies defaults apply without a config file.
func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SEATWATCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	config, err := loadConfig(viper.New())
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}

	if config.ShardCount != constants.DefaultShardCount {
		t.Errorf("ShardCount = %d, want %d", config.ShardCount, constants.DefaultShardCount)
	}
	if config.Schedule != constants.DefaultSchedule {
		t.Errorf("Schedule = %q, want %q", config.Schedule, constants.DefaultSchedule)
	}
	if config.Retention != constants.FeedRetention {
		t.Errorf("Retention = %v, want %v", config.Retention, constants.FeedRetention)
	}
	if config.Port != 8080 {
		t.Errorf("Port = %d, want 8080", config.Port)
	}
	if config.LogFormat == "" {
		t.Error("LogFormat not set to default")
	}
}

// TestLoadConfig_FileAndEnvironment verifies env vars override the file.
func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seatwatch.yaml")
	doc := `semesters: [202508, 202601]
prefixes: [CMSC]
database_path: /var/lib/seatwatch.db
port: 9000
retention: 12h
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SEATWATCH_CONFIG", path)
	t.Setenv("SEATWATCH_PORT", "9090")
	t.Setenv("SEATWATCH_PREFIXES", "CMSC, MATH")
	t.Setenv("SEATWATCH_REDIS_URL", "redis://localhost:6379/2")

	config, err := loadConfig(viper.New())
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}

	if config.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", config.ConfigFile, path)
	}
	if want := []string{"202508", "202601"}; !reflect.DeepEqual(config.Semesters, want) {
		t.Errorf("Semesters = %v, want %v", config.Semesters, want)
	}
	if want := []string{"CMSC", "MATH"}; !reflect.DeepEqual(config.Prefixes, want) {
		t.Errorf("Prefixes = %v, want %v", config.Prefixes, want)
	}
	if config.Port != 9090 {
		t.Errorf("Port = %d, want 9090 from environment", config.Port)
	}
	if config.DatabasePath != "/var/lib/seatwatch.db" {
		t.Errorf("DatabasePath = %q", config.DatabasePath)
	}
	if config.Retention != 12*time.Hour {
		t.Errorf("Retention = %v, want 12h", config.Retention)
	}
	if config.RedisURL != "redis://localhost:6379/2" {
		t.Errorf("RedisURL = %q", config.RedisURL)
	}
}

func TestApplyFlags(t *testing.T) {
	config := &Config{Format: "json", LogLevel: "warn", DatabasePath: "/var/lib/seatwatch.db"}

	fs := pflag.NewFlagSet("seatwatch", pflag.ContinueOnError)
	addGlobalFlags(fs)
	if err := fs.Parse([]string{"-v", "--no-color"}); err != nil {
		t.Fatal(err)
	}
	config.ApplyFlags(fs)
	if !config.Verbose || !config.NoColor {
		t.Error("boolean flags not applied")
	}
	if config.Format != "json" || config.LogLevel != "warn" || config.DatabasePath != "/var/lib/seatwatch.db" {
		t.Error("unset flags must not clear configured values")
	}

	fs = pflag.NewFlagSet("seatwatch", pflag.ContinueOnError)
	addGlobalFlags(fs)
	if err := fs.Parse([]string{"-o", "yaml", "--log-level", "debug", "--db", "memory"}); err != nil {
		t.Fatal(err)
	}
	config.ApplyFlags(fs)
	if config.Format != "yaml" || config.LogLevel != "debug" || config.DatabasePath != "memory" {
		t.Errorf("Format = %q, LogLevel = %q, DatabasePath = %q", config.Format, config.LogLevel, config.DatabasePath)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, nil},
		{[]string{"CMSC"}, []string{"CMSC"}},
		{[]string{"CMSC,MATH"}, []string{"CMSC", "MATH"}},
		{[]string{"CMSC, ", " MATH", ""}, []string{"CMSC", "MATH"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := expandHome("~/data/seatwatch.db"); got != filepath.Join(home, "data", "seatwatch.db") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("~"); got != home {
		t.Errorf("expandHome(~) = %q", got)
	}
	for _, path := range []string{"/tmp/x.db", "memory", "~other/x"} {
		if got := expandHome(path); got != path {
			t.Errorf("expandHome(%q) = %q, want unchanged", path, got)
		}
	}
}
