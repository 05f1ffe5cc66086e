package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"uaswitch/logger"

	"github.com/spf13/viper"
)

const appName = "uaswitch"

type DefaultPaths struct {
	ConfigDir    string
	LogPathApp   string
	LogPathProxy string
	CACertPath   string
	CAKeyPath    string
	DBPath       string
	LogLevel     string
}

type Configuration struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Server struct {
		Port    string `mapstructure:"port"`
		LogPath string `mapstructure:"log_path"`
	} `mapstructure:"server"`
	Proxy struct {
		Port               string        `mapstructure:"port"`
		MITM               bool          `mapstructure:"mitm"`
		CACertPath         string        `mapstructure:"ca_cert_path"`
		CAKeyPath          string        `mapstructure:"ca_key_path"`
		LogPath            string        `mapstructure:"log_path"`
		ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
		ProbeSkipTLSVerify bool          `mapstructure:"probe_skip_tls_verify"`
	} `mapstructure:"proxy"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Watch struct {
		Enabled  bool          `mapstructure:"enabled"`
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"watch"`
}

var AppConfig Configuration

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// ExpandTilde replaces a leading ~ with the user's home directory.
func ExpandTilde(path string) (string, error) {
	return expandTilde(path)
}

func GetDefaultConfigPaths() DefaultPaths {
	var paths DefaultPaths
	userConfigDirBase, err := os.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get user config dir: %v. Using current directory.\n", err)
		userConfigDirBase = "."
	}

	paths.ConfigDir = filepath.Join(userConfigDirBase, appName)
	logDir := filepath.Join(paths.ConfigDir, "logs")

	paths.LogPathApp = filepath.Join(logDir, "app.log")
	paths.LogPathProxy = filepath.Join(logDir, "proxy.log")
	paths.CACertPath = filepath.Join(paths.ConfigDir, "uaswitch-ca.crt")
	paths.CAKeyPath = filepath.Join(paths.ConfigDir, "uaswitch-ca.key")
	paths.DBPath = filepath.Join(paths.ConfigDir, "uaswitch.db")
	paths.LogLevel = "INFO"
	return paths
}

// newViper returns a viper instance with every default registered.
func newViper(defaults DefaultPaths) *viper.Viper {
	v := viper.New()
	v.SetDefault("database.path", defaults.DBPath)
	v.SetDefault("server.port", "8778")
	v.SetDefault("server.log_path", defaults.LogPathApp)
	v.SetDefault("proxy.port", "8777")
	v.SetDefault("proxy.mitm", true)
	v.SetDefault("proxy.ca_cert_path", defaults.CACertPath)
	v.SetDefault("proxy.ca_key_path", defaults.CAKeyPath)
	v.SetDefault("proxy.log_path", defaults.LogPathProxy)
	v.SetDefault("proxy.probe_timeout", 15*time.Second)
	v.SetDefault("proxy.probe_skip_tls_verify", false)
	v.SetDefault("logging.level", defaults.LogLevel)
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", 250*time.Millisecond)

	v.SetEnvPrefix("UASWITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into a fresh Configuration without touching loggers or AppConfig.
func Load(cfgFile string) (Configuration, string, error) {
	var cfg Configuration
	defaults := GetDefaultConfigPaths()
	v := newViper(defaults)

	if cfgFile != "" {
		expandedCfgFile, err := expandTilde(cfgFile)
		if err != nil {
			expandedCfgFile = cfgFile
		}
		v.SetConfigFile(expandedCfgFile)
		v.SetConfigType("yaml")
	} else {
		v.AddConfigPath(defaults.ConfigDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	configUsed := ""
	if err := v.ReadInConfig(); err == nil {
		configUsed = v.ConfigFileUsed()
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
		return cfg, "", fmt.Errorf("reading config file %s: %w", cfgFile, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, "", fmt.Errorf("unable to decode config into struct: %w", err)
	}

	var err error
	if cfg.Database.Path, err = expandTilde(cfg.Database.Path); err != nil {
		return cfg, "", fmt.Errorf("expanding database.path: %w", err)
	}
	if cfg.Proxy.CACertPath, err = expandTilde(cfg.Proxy.CACertPath); err != nil {
		return cfg, "", fmt.Errorf("expanding proxy.ca_cert_path: %w", err)
	}
	if cfg.Proxy.CAKeyPath, err = expandTilde(cfg.Proxy.CAKeyPath); err != nil {
		return cfg, "", fmt.Errorf("expanding proxy.ca_key_path: %w", err)
	}
	if cfg.Server.LogPath, err = expandTilde(cfg.Server.LogPath); err != nil {
		return cfg, "", fmt.Errorf("expanding server.log_path: %w", err)
	}
	if cfg.Proxy.LogPath, err = expandTilde(cfg.Proxy.LogPath); err != nil {
		return cfg, "", fmt.Errorf("expanding proxy.log_path: %w", err)
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	return cfg, configUsed, nil
}

// Init loads the configuration into AppConfig, applies flag overrides and
// re-initialises the global loggers with the final paths.
func Init(cfgFile string, flagAppLogPath, flagProxyLogPath, flagLogLevel string) error {
	cfg, configUsed, err := Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: %v\n", err)
		return err
	}
	AppConfig = cfg

	if flagAppLogPath != "" {
		if expanded, err := expandTilde(flagAppLogPath); err == nil {
			AppConfig.Server.LogPath = expanded
		} else {
			AppConfig.Server.LogPath = flagAppLogPath
		}
	}
	if flagProxyLogPath != "" {
		if expanded, err := expandTilde(flagProxyLogPath); err == nil {
			AppConfig.Proxy.LogPath = expanded
		} else {
			AppConfig.Proxy.LogPath = flagProxyLogPath
		}
	}
	if flagLogLevel != "" {
		AppConfig.Logging.Level = strings.ToUpper(flagLogLevel)
	}

	if err := os.MkdirAll(GetDefaultConfigPaths().ConfigDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create main config directory: %v\n", err)
	}

	if err := logger.InitGlobalLoggers(AppConfig.Server.LogPath, AppConfig.Proxy.LogPath, AppConfig.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to initialize global loggers with final config: %v\n", err)
		return fmt.Errorf("failed to initialize global loggers with final config: %w", err)
	}

	if configUsed != "" {
		logger.Info("Using config file: %s", configUsed)
	} else {
		logger.Info("No config file found. Using defaults/environment variables.")
	}
	if !AppConfig.Proxy.MITM {
		logger.Warn("Proxy: HTTPS interception is DISABLED. User-Agent rules apply to plain HTTP requests only.")
	}
	if AppConfig.Proxy.ProbeSkipTLSVerify {
		logger.Warn("Probe: TLS certificate verification for outgoing requests is DISABLED.")
	}

	logger.Debug("Final AppConfig Initialized: %+v", AppConfig)
	return nil
}
