package config

import (
	_ "embed"
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/paths"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: WRAPUP_ENGINE__INDEX_URL sets engine.index_url.
const EnvPrefix = "WRAPUP_"

// EnvToken is the conventional name of the release index token
const EnvToken = "WRAPUP_GITHUB_TOKEN"

// Options selects the optional layers of LoadConfiguration
type Options struct {
	// File replaces the default user config path. It must exist.
	File string
	// Overrides is applied last, keyed by dotted paths
	Overrides map[string]interface{}
}

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, stderrors.New("not implemented")
}

// DefaultContent returns the embedded defaults file
func DefaultContent() string {
	return string(defaultConfig)
}

// LoadConfiguration layers the embedded defaults, the user file, the .env
// file and WRAPUP_ environment variables, in that order, then decodes and
// validates the result.
func LoadConfiguration(p paths.Paths, opts Options) (*Config, error) {
	logger := logging.GetLogger("config")
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to load defaults")
	}

	// 2. User file
	userFile := opts.File
	if userFile != "" {
		userFile = paths.ExpandHome(userFile)
		if _, err := os.Stat(userFile); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "config file %s", userFile)
		}
	} else if p != nil {
		if _, err := os.Stat(p.ConfigFile()); err == nil {
			userFile = p.ConfigFile()
		}
	}
	if userFile != "" {
		if err := k.Load(file.Provider(userFile), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load config from %s", userFile)
		}
		logger.Debug().Str("file", userFile).Msg("Loaded user config")
	}

	// 3. .env next to the user config; real environment variables win
	if p != nil {
		if err := godotenv.Load(p.EnvFile()); err != nil {
			if !stderrors.Is(err, os.ErrNotExist) {
				return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to read %s", p.EnvFile())
			}
		} else {
			logger.Debug().Str("file", p.EnvFile()).Msg("Loaded env file")
		}
	}

	// 4. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load env vars")
	}

	// 5. Explicit overrides
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load overrides")
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to unmarshal configuration")
	}

	postProcess(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps WRAPUP_SECTION__KEY_NAME to section.key_name. Variables that
// belong to other layers return "" and are ignored.
func envKey(s string) string {
	if s == EnvToken {
		return "network.token"
	}
	switch s {
	case paths.EnvConfigDir, paths.EnvCacheDir, paths.EnvStateDir:
		return ""
	}
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if !strings.Contains(key, "__") {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func postProcess(cfg *Config) {
	cfg.Wrapper.Path = paths.ExpandHome(cfg.Wrapper.Path)
	cfg.Wrapper.SupportDir = paths.ExpandHome(cfg.Wrapper.SupportDir)
	for i := range cfg.Wrapper.Links {
		cfg.Wrapper.Links[i].Target = paths.ExpandHome(cfg.Wrapper.Links[i].Target)
	}
	if cfg.Base.Manager == "" {
		cfg.Base.Manager = "brew"
	}
	if cfg.Checksums == nil {
		cfg.Checksums = map[string]string{}
	}
}
