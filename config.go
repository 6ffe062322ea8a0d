package clubauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// APIConfig locates the backend endpoints.
type APIConfig struct {
	BaseURL     string
	TokenPath   string
	RefreshPath string
	ProfilePath string
	Timeout     time.Duration
}

// SessionConfig controls local persistence and token handling.
type SessionConfig struct {
	StoragePath   string
	RefreshLeeway time.Duration
}

// ApprovalConfig controls the pending-approval poller.
type ApprovalConfig struct {
	PollInterval time.Duration
}

// Config is the full client configuration.
type Config struct {
	Environment string
	API         APIConfig
	Session     SessionConfig
	Approval    ApprovalConfig
}

// TokenURL is the absolute credential exchange endpoint.
func (c APIConfig) TokenURL() string { return c.join(c.TokenPath) }

// RefreshURL is the absolute refresh exchange endpoint.
func (c APIConfig) RefreshURL() string { return c.join(c.RefreshPath) }

// ProfileURL is the absolute profile endpoint.
func (c APIConfig) ProfileURL() string { return c.join(c.ProfilePath) }

func (c APIConfig) join(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// LoadConfig reads clubauth.yaml from the working directory or ./config,
// layered under CLUBAUTH_* environment variables. A missing file is fine;
// defaults cover everything but the API base URL.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("clubauth")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CLUBAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("api.baseurl", "")
	v.SetDefault("api.tokenpath", "/token/")
	v.SetDefault("api.refreshpath", "/token/refresh/")
	v.SetDefault("api.profilepath", "/me/")
	v.SetDefault("api.timeout", "15s")

	v.SetDefault("session.storagepath", "clubauth.db")
	v.SetDefault("session.refreshleeway", "30s")

	v.SetDefault("approval.pollinterval", "30s")
}
