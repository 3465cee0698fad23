package pushy

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileConfig is the shape LoadConfig decodes a config file into: enough to
// construct a Client without hardcoding credentials or environment in
// source. Fields follow the two supported authentication modes; set
// either the P8* group or the P12* group, not both.
type FileConfig struct {
	Environment string `mapstructure:"environment"`
	BundleID    string `mapstructure:"bundle_id"`

	P8Path string `mapstructure:"p8_path"`
	KeyID  string `mapstructure:"key_id"`
	TeamID string `mapstructure:"team_id"`

	P12Path     string `mapstructure:"p12_path"`
	P12Password string `mapstructure:"p12_password"`
}

// RegisterFlags declares the command-line flags LoadConfigWithFlags binds
// ahead of reading the config file, so a flag passed on the command line
// overrides the same key in the file or environment.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("environment", "", "APNs environment: production or development")
	flags.String("bundle-id", "", "default apns-topic bundle identifier")
	flags.String("p8-path", "", "path to a PKCS#8 .p8 signing key")
	flags.String("key-id", "", "Apple-issued key id for the .p8 signing key")
	flags.String("team-id", "", "Apple-issued team id for the .p8 signing key")
	flags.String("p12-path", "", "path to a PKCS#12 .p12 client certificate")
	flags.String("p12-password", "", "password for the .p12 client certificate")
}

// LoadConfig reads path (any format viper supports: YAML, JSON, TOML, ...)
// and environment variables prefixed PUSHY_, and decodes it into a
// FileConfig.
func LoadConfig(path string) (*FileConfig, error) {
	return LoadConfigWithFlags(path, nil)
}

// LoadConfigWithFlags is LoadConfig plus an optional flag set (populated
// via RegisterFlags and already parsed by the caller) whose values take
// precedence over the file and environment.
func LoadConfigWithFlags(path string, flags *pflag.FlagSet) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("pushy")
	v.AutomaticEnv()
	if flags != nil {
		// Flag names use hyphens; bind each under the underscore key the
		// config file and FileConfig's mapstructure tags use.
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil {
				bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("pushy: failed to bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("pushy: failed to read config %q: %w", path, err)
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("pushy: failed to decode config: %w", err)
	}
	return &cfg, nil
}

// ParsedEnvironment parses the configured environment string ("production" or
// "development", case-insensitive); an empty or unrecognized value
// defaults to Production.
func (cfg *FileConfig) ParsedEnvironment() Environment {
	if strings.EqualFold(cfg.Environment, "development") {
		return Development
	}
	return Production
}

// UsesTokenAuth reports whether this config is configured for .p8/JWT
// authentication rather than .p12/mTLS.
func (cfg *FileConfig) UsesTokenAuth() bool {
	return cfg.P8Path != ""
}
