package config

import (
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (DAREDROP_API_BASE_URL, ...)
const EnvPrefix = "DAREDROP"

var configDir string
var configFilePath string
var credentialsPath string

// getConfigDir returns platform-specific config directory
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		// Windows: %LOCALAPPDATA%\daredrop\cli
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "daredrop", "cli"), nil
	}

	// Unix-like (macOS, Linux): ~/.config/daredrop/cli
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "daredrop", "cli"), nil
}

// getSystemConfigPaths returns platform-specific system config paths
func getSystemConfigPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(os.Getenv("ProgramFiles"), "Daredrop", "cli", "config.toml")}
	}

	return []string{
		"/etc/daredrop/cli/config.toml",
		"/usr/local/etc/daredrop/cli/config.toml",
	}
}

// Init initializes the configuration
func Init(configPath string) error {
	var err error
	if configPath != "" {
		configDir = filepath.Dir(configPath)
		configFilePath = configPath
	} else {
		configDir, err = getConfigDir()
		if err != nil {
			return err
		}
		configFilePath = filepath.Join(configDir, "config.toml")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	credentialsPath = filepath.Join(configDir, "credentials")

	// A .env in the working directory is optional
	_ = godotenv.Load()

	viper.Reset()
	viper.SetConfigType("toml")
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Load system config first (if exists) - serves as foundation
	for _, sysConfigPath := range getSystemConfigPaths() {
		if _, err := os.Stat(sysConfigPath); err == nil {
			viper.SetConfigFile(sysConfigPath)
			_ = viper.ReadInConfig()
			break
		}
	}

	// User config overrides system config
	viper.SetConfigFile(configFilePath)
	_ = viper.MergeInConfig()

	return nil
}

func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:54321")
	viper.SetDefault("api.key", "")
	viper.SetDefault("api.timeout", 30)

	viper.SetDefault("realtime.url", "")
	viper.SetDefault("realtime.heartbeat_ms", 30000)
	viper.SetDefault("realtime.reconnect_base_ms", 2000)
	viper.SetDefault("realtime.reconnect_max_ms", 30000)
	viper.SetDefault("realtime.join_timeout_ms", 10000)
	viper.SetDefault("realtime.buffer", 64)

	viper.SetDefault("functions.scan", "content-scan")
	viper.SetDefault("functions.dares", "dare-suggestions")
	viper.SetDefault("functions.notify", "send-notification")
	viper.SetDefault("scan.failure_policy", "closed")

	viper.SetDefault("storage.endpoint", "")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.bucket", "videos")
	viper.SetDefault("storage.access_key", "")
	viper.SetDefault("storage.secret_key", "")
	viper.SetDefault("storage.public_url", "")
	viper.SetDefault("storage.path_style", true)

	viper.SetDefault("state.path", filepath.Join(configDir, "state.db"))
	viper.SetDefault("metrics.addr", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.environment", "development")
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.sampling_rate", 1.0)

	viper.SetDefault("output.format", "text")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", filepath.Join(configDir, "daredrop.log"))
	viper.SetDefault("log.max_size_mb", 20)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetString returns a string configuration value
func GetString(key string) string {
	value := viper.GetString(key)
	if key == "state.path" || key == "log.file" {
		return expandPath(value)
	}
	return value
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool configuration value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float configuration value
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetMillis reads an integer millisecond key as a duration
func GetMillis(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Millisecond
}

// SetString sets a string configuration value
func SetString(key string, value string) error {
	viper.Set(key, value)
	return viper.WriteConfigAs(configFilePath)
}

// Override sets a value for this process only
func Override(key string, value interface{}) {
	viper.Set(key, value)
}

// RealtimeURL returns the websocket endpoint, derived from api.base_url unless realtime.url is set
func RealtimeURL() string {
	if explicit := viper.GetString("realtime.url"); explicit != "" {
		return explicit
	}
	return DeriveRealtimeURL(viper.GetString("api.base_url"))
}

// DeriveRealtimeURL maps http(s)://host to ws(s)://host/realtime/v1/websocket
func DeriveRealtimeURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime/v1/websocket"
	u.RawQuery = ""
	return u.String()
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return configDir
}

// GetConfigFilePath returns the user config file path
func GetConfigFilePath() string {
	return configFilePath
}

// GetCredentialsPath returns the path to the credentials file
func GetCredentialsPath() string {
	return credentialsPath
}
