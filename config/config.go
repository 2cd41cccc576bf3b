// Package config loads service configuration from YAML files with
// environment variable overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const defaultPath = "."

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port     int `json:"port" yaml:"port" validate:"required,min=1,max=65535"`
		Timeouts struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	// OAuth holds the client metadata registered with the authorization
	// servers. Both values are passthrough configuration for the login flow.
	OAuth OAuthConfig `json:"oauth" yaml:"oauth"`

	// ATProto configures the external resolution and read endpoints.
	ATProto ATProtoConfig `json:"atproto" yaml:"atproto"`

	// Storage configures the embedded key-value store used for sessions
	// and the profile cache.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Cache configures the profile cache windows.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// QRCode configures login QR code rendering.
	QRCode *QRCodeConfig `json:"qrcode" yaml:"qrcode"`
}

// OAuthConfig defines the OAuth client metadata.
type OAuthConfig struct {
	ClientID    string `json:"clientId" yaml:"clientId" validate:"required"`
	RedirectURI string `json:"redirectUri" yaml:"redirectUri" validate:"required,url"`
	Scope       string `json:"scope" yaml:"scope"`
}

// ATProtoConfig defines the external services the resolver and clients use.
type ATProtoConfig struct {
	// PLCDirectory is the did:plc directory service.
	PLCDirectory string `json:"plcDirectory" yaml:"plcDirectory" validate:"required,url"`

	// DoHEndpoint is a DNS-over-HTTPS JSON endpoint for TXT lookups.
	DoHEndpoint string `json:"dohEndpoint" yaml:"dohEndpoint" validate:"required,url"`

	// AppviewURL is the public read-only endpoint used for profile lookups.
	AppviewURL string `json:"appviewUrl" yaml:"appviewUrl" validate:"required,url"`

	// RequestTimeout bounds every outbound resolution and XRPC call.
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"`
}

// StorageConfig defines the embedded store location.
type StorageConfig struct {
	Path string `json:"path" yaml:"path" validate:"required"`
}

// CacheConfig defines the profile cache windows. Freshness bounds
// correctness on the read path; retention bounds storage growth.
type CacheConfig struct {
	Freshness time.Duration `json:"freshness" yaml:"freshness"`
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// QRCodeConfig defines QR code generation configuration.
type QRCodeConfig struct {
	Size                 int    `json:"size" yaml:"size"`
	ErrorCorrectionLevel string `json:"errorCorrectionLevel" yaml:"errorCorrectionLevel"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			searchPaths = append(searchPaths, filepath.Join(pwd, path))
		}
	}

	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Environment variables override file values. OAUTH_CLIENTID becomes
	// oauth.clientId by aligning each segment with the existing YAML keys.
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			return canonicalizeEnvKey(k, existingConfigMap), v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

// New loads, defaults and validates the service configuration.
func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.OAuth.Scope == "" {
		cfg.OAuth.Scope = "atproto transition:generic"
	}
	if cfg.ATProto.PLCDirectory == "" {
		cfg.ATProto.PLCDirectory = "https://plc.directory"
	}
	if cfg.ATProto.DoHEndpoint == "" {
		cfg.ATProto.DoHEndpoint = "https://cloudflare-dns.com/dns-query"
	}
	if cfg.ATProto.AppviewURL == "" {
		cfg.ATProto.AppviewURL = "https://public.api.bsky.app"
	}
	if cfg.ATProto.RequestTimeout <= 0 {
		cfg.ATProto.RequestTimeout = 30 * time.Second
	}
	if cfg.Cache.Freshness <= 0 {
		cfg.Cache.Freshness = 5 * time.Minute
	}
	if cfg.Cache.Retention <= 0 {
		cfg.Cache.Retention = 24 * time.Hour
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
