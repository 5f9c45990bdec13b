// Package config loads flvextract settings from defaults, an optional YAML
// file, FLVEXTRACT_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appName   = "flvextract"
	envPrefix = "FLVEXTRACT"
)

// Keys, also used as flag names with '_' spelled '-'.
const (
	KeyAudio     = "audio"
	KeyVideo     = "video"
	KeyTimecodes = "timecodes"
	KeyOutputDir = "output_dir"
	KeyOverwrite = "overwrite"
	KeyJobs      = "jobs"
	KeyReport    = "report"
	KeyDebug     = "debug"

	flagConfig = "config"
)

// Overwrite is the policy for output files that already exist.
type Overwrite string

const (
	OverwriteAlways Overwrite = "always"
	OverwriteNever  Overwrite = "never"
	OverwriteAsk    Overwrite = "ask"
)

var ErrInvalidOverwrite = errors.New("config: overwrite must be always, never or ask")

// Config is the resolved configuration.
type Config struct {
	Audio     bool      `yaml:"audio"`
	Video     bool      `yaml:"video"`
	Timecodes bool      `yaml:"timecodes"`
	OutputDir string    `yaml:"output_dir"`
	Overwrite Overwrite `yaml:"overwrite"`
	Jobs      int       `yaml:"jobs"`
	Report    string    `yaml:"report"`
	Debug     bool      `yaml:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAudio, true)
	v.SetDefault(KeyVideo, true)
	v.SetDefault(KeyTimecodes, false)
	v.SetDefault(KeyOutputDir, "")
	v.SetDefault(KeyOverwrite, string(OverwriteAlways))
	v.SetDefault(KeyJobs, runtime.NumCPU())
	v.SetDefault(KeyReport, "")
	v.SetDefault(KeyDebug, false)
}

// RegisterFlags defines the configuration flags on flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.Bool(flagName(KeyAudio), true, "extract the audio stream")
	flags.Bool(flagName(KeyVideo), true, "extract the video stream")
	flags.Bool(flagName(KeyTimecodes), false, "write video timecodes to a .txt file")
	flags.StringP(flagName(KeyOutputDir), "o", "", "write outputs to this directory instead of next to each input")
	flags.String(flagName(KeyOverwrite), string(OverwriteAlways), "existing outputs: always, never or ask")
	flags.IntP(flagName(KeyJobs), "j", runtime.NumCPU(), "files to extract in parallel")
	flags.String(flagName(KeyReport), "", "write a YAML report of every extraction to this file")
	flags.Bool(flagName(KeyDebug), false, "enable debug logging")
	flags.String(flagConfig, "", "configuration file (default ./flvextract.yaml or $XDG_CONFIG_HOME/flvextract/flvextract.yaml)")
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Load resolves the configuration. The configuration file is read from
// fsys; flags may be nil.
func Load(fsys afero.Fs, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetFs(fsys)
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	explicit := ""
	if flags != nil {
		if f := flags.Lookup(flagConfig); f != nil {
			explicit = f.Value.String()
		}
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if flags != nil {
		for _, key := range []string{KeyAudio, KeyVideo, KeyTimecodes, KeyOutputDir, KeyOverwrite, KeyJobs, KeyReport, KeyDebug} {
			if f := flags.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("config: bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	cfg := Config{
		Audio:     v.GetBool(KeyAudio),
		Video:     v.GetBool(KeyVideo),
		Timecodes: v.GetBool(KeyTimecodes),
		OutputDir: v.GetString(KeyOutputDir),
		Overwrite: Overwrite(strings.ToLower(v.GetString(KeyOverwrite))),
		Jobs:      v.GetInt(KeyJobs),
		Report:    v.GetString(KeyReport),
		Debug:     v.GetBool(KeyDebug),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that viper cannot type-check.
func (c Config) Validate() error {
	switch c.Overwrite {
	case OverwriteAlways, OverwriteNever, OverwriteAsk:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidOverwrite, c.Overwrite)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("config: jobs must be at least 1, got %d", c.Jobs)
	}
	return nil
}
