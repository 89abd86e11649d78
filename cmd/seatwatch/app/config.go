package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/agentstation/seatwatch/pkg/constants"
)

// envPrefix namespaces every environment variable, e.g. SEATWATCH_REDIS_URL.
const envPrefix = "SEATWATCH"

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Storage and queues
	DatabasePath string
	RedisURL     string
	ShardCount   int

	// Pipeline
	Concurrency      int
	PushRate         float64
	DeliveryRate     float64
	Retention        time.Duration
	PruneProbability float64
	IgnoreTypes      []string

	// Scraping
	Schedule  string
	Semesters []string
	Prefixes  []string
	SourceDir string
	SourceURL string

	// HTTP server
	Host        string
	Port        int
	APIKey      string
	CORSOrigins []string
	RateLimit   int

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (SEATWATCH_*)
// 3. .env files
// 4. Config file (~/.seatwatch.yaml)
// 5. Defaults
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	setDefaults(v)

	configFile := os.Getenv(envPrefix + "_CONFIG")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.DefaultConfigName)
	}

	// Read config file (ignore error if not found)
	_ = v.ReadInConfig()

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no-color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		DatabasePath: expandHome(v.GetString("database_path")),
		RedisURL:     v.GetString("redis_url"),
		ShardCount:   v.GetInt("shard_count"),

		Concurrency:      v.GetInt("concurrency"),
		PushRate:         v.GetFloat64("push_rate"),
		DeliveryRate:     v.GetFloat64("delivery_rate"),
		Retention:        v.GetDuration("retention"),
		PruneProbability: v.GetFloat64("prune_probability"),
		IgnoreTypes:      splitList(v.GetStringSlice("ignore_types")),

		Schedule:  v.GetString("schedule"),
		Semesters: splitList(v.GetStringSlice("semesters")),
		Prefixes:  splitList(v.GetStringSlice("prefixes")),
		SourceDir: expandHome(v.GetString("source_dir")),
		SourceURL: v.GetString("source_url"),

		Host:        v.GetString("host"),
		Port:        v.GetInt("port"),
		APIKey:      v.GetString("api_key"),
		CORSOrigins: splitList(v.GetStringSlice("cors_origins")),
		RateLimit:   v.GetInt("rate_limit"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", constants.DefaultDatabasePath)
	v.SetDefault("shard_count", constants.DefaultShardCount)
	v.SetDefault("concurrency", constants.DefaultConcurrency)
	v.SetDefault("push_rate", constants.DefaultPushRate)
	v.SetDefault("delivery_rate", constants.DefaultDeliveryRate)
	v.SetDefault("retention", constants.FeedRetention)
	v.SetDefault("prune_probability", constants.FeedPruneProbability)
	v.SetDefault("schedule", constants.DefaultSchedule)
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("rate_limit", 120)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// ApplyFlags copies the global flags that were set on the command line.
// Flags beat the config file and the environment; unset flags leave them
// alone.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) {
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			*dst, _ = fs.GetBool(name)
		}
	}
	setString := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	setBool("verbose", &c.Verbose)
	setBool("quiet", &c.Quiet)
	setBool("no-color", &c.NoColor)
	setString("format", &c.Format)
	setString("log-level", &c.LogLevel)
	if fs.Changed("db") {
		db, _ := fs.GetString("db")
		c.DatabasePath = expandHome(db)
	}
}

// loadEnvFiles reads .env.local and then .env. godotenv never replaces a
// variable that is already set, so the real environment wins over both
// files and .env.local wins over .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
