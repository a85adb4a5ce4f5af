// Package config loads auth.Options from defaults, an optional file and
// environment variables, in that order of precedence.
package config

import (
	"path/filepath"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-tokenauth"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix maps TOKENAUTH_SIGNING_KEY to signing_key
const DefaultEnvPrefix = "TOKENAUTH_"

const delim = "."

// listKeys are split on commas when read from the environment
var listKeys = map[string]bool{
	"audience": true,
}

// Load builds validated options. path may be empty, otherwise its extension
// picks the parser (.yaml, .yml or .json).
func Load(path, envPrefix string) (auth.Options, error) {
	k := koanf.New(delim)

	if err := k.Load(confmap.Provider(defaults(), delim), nil); err != nil {
		return auth.Options{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load config defaults")
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return auth.Options{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return auth.Options{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}

	envProvider := env.ProviderWithValue(envPrefix, delim, func(key, value string) (string, any) {
		name := strings.ToLower(strings.TrimPrefix(key, envPrefix))
		if listKeys[name] {
			return name, splitList(value)
		}
		return name, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return auth.Options{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load environment config")
	}

	var opts auth.Options
	if err := k.UnmarshalWithConf("", &opts, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return auth.Options{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config")
	}

	opts = auth.OptionsFromConfig(opts)
	if err := opts.Validate(); err != nil {
		return auth.Options{}, err
	}

	return opts, nil
}

func defaults() map[string]any {
	def := auth.DefaultOptions()
	return map[string]any{
		"signing_method":      def.SigningMethod,
		"access_token_ttl":    def.AccessTokenTTL.String(),
		"reset_token_ttl":     def.ResetTokenTTL.String(),
		"bcrypt_cost":         def.BcryptCost,
		"password_min_length": def.PasswordMinLength,
		"password_max_length": def.PasswordMaxLength,
		"strict_enumeration":  false,
	}
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, goerrors.New("unsupported config file extension", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"path": path})
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
