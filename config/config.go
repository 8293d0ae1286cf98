package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-rooms/globals"
)

const (
	defaultServerName      = "localhost"
	defaultRoomVersion     = "9"
	defaultMaxMessageSize  = 65536
	defaultHistoryPageSize = 50
)

// Config is the global configuration object which is filled via the configuration file
// and optionally overridden by command-line flags / environment variables.
type Config struct {
	ServerName         string            `mapstructure:"server_name"`          // server part of generated room / alias ids
	DefaultRoomVersion string            `mapstructure:"default_room_version"` // room version tag used when the caller does not supply one
	MaxMessageSize     int               `mapstructure:"max_message_size"`     // byte ceiling for message bodies
	LogLevel           string            `mapstructure:"log_level"`
	HistoryConfig      HistoryConfig     `mapstructure:"history"`
	OIDCConfigs        []OIDCConfig      `mapstructure:"oidc"`
	PersistenceConfig  PersistenceConfig `mapstructure:"persistence"`
}

// HistoryConfig configures the default page size for timeline history requests.
type HistoryConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// An OIDCConfig object configures an OpenID Connect provider that is used to authenticate users.
// Users provide an ID token and the name of the provider, the authentication is then performed
// via verification of the token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"` // f.e. "https://accounts.google.com"
}

// PersistenceConfig selects the state store backend. Supported types: "memory" (default),
// "buntdb", "sqlite", "postgres". DSN is the buntdb file name or the database DSN.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("server-name", "s", defaultServerName, "server name used in room and alias ids")
	flagSet.String("log-level", "INFO", "log level")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.Replace(name, "-", "_", -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either
// point to a single TOML file or to a directory, in which case all *.toml files in this
// directory are concatenated. It returns a Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("server_name", defaultServerName)
	viper.SetDefault("default_room_version", defaultRoomVersion)
	viper.SetDefault("max_message_size", defaultMaxMessageSize)
	viper.SetDefault("history.page_size", defaultHistoryPageSize)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("LSROOMS")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	globals.AppLogger.Debug("config", "cfg", cfg, "all", viper.AllSettings())
	return &cfg, nil
}
