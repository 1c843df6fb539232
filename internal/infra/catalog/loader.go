package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("catalog")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("maxRetryCount", domain.DefaultMaxRetryCount)
	v.SetDefault("maxConcurrent", domain.DefaultMaxConcurrent)
	v.SetDefault("cacheTTLSeconds", int(domain.DefaultCacheTTL/time.Second))
	v.SetDefault("callTimeoutSeconds", int(domain.DefaultCallTimeout/time.Second))
	v.SetDefault("listTimeoutSeconds", int(domain.DefaultListTimeout/time.Second))
	v.SetDefault("notifyTimeoutSeconds", int(domain.DefaultNotifyTimeout/time.Second))
	v.SetDefault("monitorIntervalSeconds", domain.DefaultMonitorIntervalSeconds)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	return v
}

type rawConfig struct {
	Endpoints  []rawEndpointSpec `mapstructure:"endpoints"`
	rawRuntime `mapstructure:",squash"`
}

type rawEndpointSpec struct {
	Name            string            `mapstructure:"name"`
	URL             string            `mapstructure:"url"`
	Headers         map[string]string `mapstructure:"headers"`
	MaxConcurrent   int               `mapstructure:"maxConcurrent"`
	ProtocolVersion string            `mapstructure:"protocolVersion"`
	Disabled        bool              `mapstructure:"disabled"`
}

type rawRuntime struct {
	MaxRetryCount          int              `mapstructure:"maxRetryCount"`
	MaxConcurrent          int              `mapstructure:"maxConcurrent"`
	CacheTTLSeconds        int              `mapstructure:"cacheTTLSeconds"`
	CallTimeoutSeconds     int              `mapstructure:"callTimeoutSeconds"`
	ListTimeoutSeconds     int              `mapstructure:"listTimeoutSeconds"`
	NotifyTimeoutSeconds   int              `mapstructure:"notifyTimeoutSeconds"`
	MonitorIntervalSeconds int              `mapstructure:"monitorIntervalSeconds"`
	CatalogStorePath       string           `mapstructure:"catalogStorePath"`
	Observability          rawObservability `mapstructure:"observability"`
}

type rawObservability struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

// Load reads, expands, and validates the config file at path.
func (l *Loader) Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	expanded, missing, err := expandConfigEnv(data)
	if err != nil {
		return Config{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config",
			zap.String("path", path),
			zap.Strings("missing", missing),
		)
	}

	v := newConfigViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return normalizeConfig(raw)
}

func normalizeConfig(raw rawConfig) (Config, error) {
	var validationErrors []string

	runtime := RuntimeConfig{
		MaxRetryCount:    raw.MaxRetryCount,
		MaxConcurrent:    raw.MaxConcurrent,
		CacheTTL:         time.Duration(raw.CacheTTLSeconds) * time.Second,
		CallTimeout:      time.Duration(raw.CallTimeoutSeconds) * time.Second,
		ListTimeout:      time.Duration(raw.ListTimeoutSeconds) * time.Second,
		NotifyTimeout:    time.Duration(raw.NotifyTimeoutSeconds) * time.Second,
		MonitorInterval:  time.Duration(raw.MonitorIntervalSeconds) * time.Second,
		CatalogStorePath: strings.TrimSpace(raw.CatalogStorePath),
		Observability: ObservabilityConfig{
			ListenAddress: strings.TrimSpace(raw.Observability.ListenAddress),
		},
	}
	if raw.MaxRetryCount < 1 {
		validationErrors = append(validationErrors, "maxRetryCount must be at least 1")
	}
	if raw.MaxConcurrent < 1 {
		validationErrors = append(validationErrors, "maxConcurrent must be at least 1")
	}
	if raw.CacheTTLSeconds < 0 {
		validationErrors = append(validationErrors, "cacheTTLSeconds must not be negative")
	}

	endpoints := make([]EndpointSpec, 0, len(raw.Endpoints))
	nameSeen := make(map[string]struct{}, len(raw.Endpoints))
	for i, spec := range raw.Endpoints {
		name := strings.TrimSpace(spec.Name)
		url := domain.NormalizeEndpoint(spec.URL)
		if name == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("endpoints[%d]: name is required", i))
			continue
		}
		if _, exists := nameSeen[name]; exists {
			validationErrors = append(validationErrors, fmt.Sprintf("endpoints[%d]: duplicate name %q", i, name))
			continue
		}
		nameSeen[name] = struct{}{}
		if url == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("endpoints[%d]: url is required", i))
			continue
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			validationErrors = append(validationErrors, fmt.Sprintf("endpoints[%d]: url %q must be http or https", i, url))
			continue
		}
		maxConcurrent := spec.MaxConcurrent
		if maxConcurrent < 1 {
			maxConcurrent = runtime.MaxConcurrent
		}
		protocolVersion := strings.TrimSpace(spec.ProtocolVersion)
		if protocolVersion == "" {
			protocolVersion = domain.DefaultProtocolVersion
		}
		endpoints = append(endpoints, EndpointSpec{
			Name:            name,
			URL:             url,
			Headers:         spec.Headers,
			MaxConcurrent:   maxConcurrent,
			ProtocolVersion: protocolVersion,
			Disabled:        spec.Disabled,
		})
	}

	if len(validationErrors) > 0 {
		return Config{}, errors.New(strings.Join(validationErrors, "; "))
	}
	return Config{Endpoints: endpoints, Runtime: runtime}, nil
}
