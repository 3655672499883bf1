package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spf13/viper"
)

// Config holds the application configuration parameters.
type Config struct {
	DBConn         string
	ReportURL      string
	ReferenceZones []string
	FetchRetries   uint64
	HTTPTimeout    time.Duration
	BrowserTimeout time.Duration
}

// Global constants for configuration keys
const (
	DBHostKey     = "DB_HOST"
	DBPortKey     = "DB_PORT"
	DBUserKey     = "DB_USER"
	DBPasswordKey = "DB_PASSWORD"
	DBNameKey     = "DB_NAME"

	ReportURLKey      = "REPORT_URL"
	ReferenceZonesKey = "reference_zones" // list in config.yaml
	FetchRetriesKey   = "FETCH_RETRIES"
	HTTPTimeoutKey    = "HTTP_TIMEOUT"
	BrowserTimeoutKey = "BROWSER_TIMEOUT"
)

// Defaults. Namakkal is the one zone that has appeared in every report the
// upstream has ever published, which makes it the canonical render probe.
const defaultReportURL = "https://www.e2necc.com/home/eggprice"

var defaultReferenceZones = []string{"Namakkal", "Chennai", "Mumbai"}

// Init initializes Viper, sets defaults, and constructs the DSN.
func Init() *Config {
	// --- File-based configuration ---
	viper.SetConfigName("config") // name of config file (e.g., config.yaml)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".") // look in the current directory

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found; this is not an error, we can rely on defaults/env
			log.Println("config.yaml not found, using defaults and environment variables.")
		}
	}

	// Set up Viper to read environment variables
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	viper.SetDefault(ReportURLKey, defaultReportURL)
	viper.SetDefault(FetchRetriesKey, 3)
	viper.SetDefault(HTTPTimeoutKey, 30*time.Second)
	viper.SetDefault(BrowserTimeoutKey, 90*time.Second)

	// Construct the DSN from individual components
	dsn := buildDSN()

	referenceZones := viper.GetStringSlice(ReferenceZonesKey)
	if len(referenceZones) == 0 {
		referenceZones = defaultReferenceZones
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
	})

	viper.WatchConfig()

	return &Config{
		DBConn:         dsn,
		ReportURL:      viper.GetString(ReportURLKey),
		ReferenceZones: referenceZones,
		FetchRetries:   viper.GetUint64(FetchRetriesKey),
		HTTPTimeout:    viper.GetDuration(HTTPTimeoutKey),
		BrowserTimeout: viper.GetDuration(BrowserTimeoutKey),
	}
}

// buildDSN constructs the PostgreSQL DSN from individual config values read by Viper.
func buildDSN() string {
	host := viper.GetString(DBHostKey)
	port := viper.GetString(DBPortKey)
	user := viper.GetString(DBUserKey)
	password := viper.GetString(DBPasswordKey)
	dbname := viper.GetString(DBNameKey)

	if host == "" || user == "" || dbname == "" {
		log.Fatalf("Fatal Error: Missing mandatory database configuration (Host: %s, User: %s, DB Name: %s). Check ENV variables or config file.", host, user, dbname)
	}

	// Standard PostgreSQL DSN format
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Kolkata",
		host, user, password, dbname, port,
	)
	return dsn
}
