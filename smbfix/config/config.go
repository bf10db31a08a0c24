package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	internal "github.com/Keav/smbfix/smbfix"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file, environment variables or bound flags.
type Config struct {
	Rules       RulesConfig       `mapstructure:"rules"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Traversal   TraversalConfig   `mapstructure:"traversal"`
	Log         LogConfig         `mapstructure:"log"`
}

// RulesConfig controls name sanitization.
type RulesConfig struct {
	Replacement       string `mapstructure:"replacement"`
	StrictCharset     bool   `mapstructure:"strictCharset"`
	CaseInsensitive   bool   `mapstructure:"caseInsensitive"`
	MaxSuffixAttempts int    `mapstructure:"maxSuffixAttempts"`
}

// PermissionsConfig is the baseline permission policy. Modes are octal strings.
type PermissionsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DirRequired   string `mapstructure:"dirRequired"`
	DirForbidden  string `mapstructure:"dirForbidden"`
	FileRequired  string `mapstructure:"fileRequired"`
	FileForbidden string `mapstructure:"fileForbidden"`
}

// TraversalConfig controls which entries are visited and how runs are scheduled.
type TraversalConfig struct {
	Exclude         []string `mapstructure:"exclude"`
	IgnoreFile      string   `mapstructure:"ignoreFile"`
	UnlockImmutable bool     `mapstructure:"unlockImmutable"`
	Workers         int      `mapstructure:"workers"`
	DryRun          bool     `mapstructure:"dryRun"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// New returns a viper instance with defaults and env bindings set.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("rules.replacement", internal.DefaultReplacement)
	v.SetDefault("rules.strictCharset", true)
	v.SetDefault("rules.caseInsensitive", true)
	v.SetDefault("rules.maxSuffixAttempts", internal.DefaultMaxSuffixAttempts)

	v.SetDefault("permissions.enabled", true)
	v.SetDefault("permissions.dirRequired", fmt.Sprintf("%04o", internal.DefaultDirRequiredMode))
	v.SetDefault("permissions.dirForbidden", "0000")
	v.SetDefault("permissions.fileRequired", fmt.Sprintf("%04o", internal.DefaultFileRequiredMode))
	v.SetDefault("permissions.fileForbidden", "0000")

	v.SetDefault("traversal.exclude", internal.DefaultExcludes)
	v.SetDefault("traversal.ignoreFile", internal.DefaultIgnoreFile)
	v.SetDefault("traversal.unlockImmutable", true)
	v.SetDefault("traversal.workers", internal.DefaultWorkers)
	v.SetDefault("traversal.dryRun", false)

	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("log.format", "console")

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // rules.replacement becomes SMBFIX_RULES_REPLACEMENT

	return v
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	return Load(New(), configPath)
}

// Load reads the config file into v (if one is found) and decodes the result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(internal.DefaultConfigPath)
		v.AddConfigPath(internal.DefaultSystemConfig)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// No config file; defaults and env are enough.
		case configPath != "" && errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("config file %s not found: %w", configPath, err)
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that the decoder cannot.
func (c *Config) Validate() error {
	if utf8.RuneCountInString(c.Rules.Replacement) != 1 {
		return fmt.Errorf("%w: rules.replacement must be a single character, got %q", ErrInvalidConfig, c.Rules.Replacement)
	}
	if c.Rules.MaxSuffixAttempts < 1 {
		return fmt.Errorf("%w: rules.maxSuffixAttempts must be positive", ErrInvalidConfig)
	}
	if c.Traversal.Workers < 1 {
		return fmt.Errorf("%w: traversal.workers must be positive", ErrInvalidConfig)
	}

	dirReq, dirForb, err := c.Permissions.DirModes()
	if err != nil {
		return err
	}
	fileReq, fileForb, err := c.Permissions.FileModes()
	if err != nil {
		return err
	}
	if dirReq&dirForb != 0 {
		return fmt.Errorf("%w: directory modes %04o required and forbidden at once", ErrInvalidConfig, dirReq&dirForb)
	}
	if fileReq&fileForb != 0 {
		return fmt.Errorf("%w: file modes %04o required and forbidden at once", ErrInvalidConfig, fileReq&fileForb)
	}
	return nil
}

// DirModes returns the required and forbidden directory bits.
func (p PermissionsConfig) DirModes() (required, forbidden os.FileMode, err error) {
	if required, err = ParseMode(p.DirRequired); err != nil {
		return 0, 0, fmt.Errorf("%w: permissions.dirRequired: %v", ErrInvalidConfig, err)
	}
	if forbidden, err = ParseMode(p.DirForbidden); err != nil {
		return 0, 0, fmt.Errorf("%w: permissions.dirForbidden: %v", ErrInvalidConfig, err)
	}
	return required, forbidden, nil
}

// FileModes returns the required and forbidden file bits.
func (p PermissionsConfig) FileModes() (required, forbidden os.FileMode, err error) {
	if required, err = ParseMode(p.FileRequired); err != nil {
		return 0, 0, fmt.Errorf("%w: permissions.fileRequired: %v", ErrInvalidConfig, err)
	}
	if forbidden, err = ParseMode(p.FileForbidden); err != nil {
		return 0, 0, fmt.Errorf("%w: permissions.fileForbidden: %v", ErrInvalidConfig, err)
	}
	return required, forbidden, nil
}

// ParseMode parses an octal permission string such as "0700", "700" or "0o700".
func ParseMode(s string) (os.FileMode, error) {
	ss := strings.TrimSpace(s)
	if ss == "" {
		return 0, nil
	}
	if !strings.HasPrefix(ss, "0") {
		ss = "0" + ss
	}
	u, err := strconv.ParseUint(ss, 0, 32)
	if err != nil {
		return 0, err
	}
	if u&^0o777 != 0 {
		return 0, fmt.Errorf("mode %s has bits outside 0777", s)
	}
	return os.FileMode(u), nil
}
