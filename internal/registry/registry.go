package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AuthSchemeBearer = "bearer" // Authorization: Bearer <token>
	AuthSchemeHeader = "header" // custom header carries the API token
	AuthSchemeQuery  = "query"  // query parameter carries the API token

	defaultTimeout     = 120 * time.Second
	defaultContentType = "application/json"
)

var providerKeyRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type fileConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig is the YAML shape of one registry entry.
type ProviderConfig struct {
	Key             string            `yaml:"key"`
	Enabled         *bool             `yaml:"enabled"`
	AuthType        string            `yaml:"auth_type"`
	APIEndpoint     string            `yaml:"api_endpoint"`
	RefreshTokenURL string            `yaml:"refresh_token_url"`
	AuthScheme      string            `yaml:"auth_scheme"`
	AuthField       string            `yaml:"auth_field"`
	ContentType     string            `yaml:"content_type"`
	StaticHeaders   map[string]string `yaml:"static_headers"`
	Timeout         string            `yaml:"timeout"`
	Intents         []IntentConfig    `yaml:"intents"`
}

// IntentConfig is the YAML shape of one intent declaration.
type IntentConfig struct {
	Name   string   `yaml:"name"`
	Method string   `yaml:"method"`
	Path   string   `yaml:"path"`
	Params []string `yaml:"params"`
}

// ProviderMeta is the immutable runtime view of a registered provider.
type ProviderMeta struct {
	Key             string            `json:"key"`
	Enabled         bool              `json:"enabled"`
	AuthType        string            `json:"auth_type"`
	APIEndpoint     string            `json:"api_endpoint"` // may contain {endpoint}/{subdomain}
	RefreshTokenURL string            `json:"refresh_token_url,omitempty"`
	AuthScheme      string            `json:"auth_scheme"`
	AuthField       string            `json:"auth_field,omitempty"`
	ContentType     string            `json:"content_type"`
	StaticHeaders   map[string]string `json:"static_headers,omitempty"`
	Timeout         time.Duration     `json:"-"`
}

// Intent is a named logical operation on a provider.
type Intent struct {
	Provider string   `json:"provider"`
	Name     string   `json:"name"`
	Method   string   `json:"method"`
	Path     string   `json:"path"` // may contain {param} slots
	Params   []string `json:"params,omitempty"`
}

var (
	stateMu      sync.RWMutex
	initialized  bool
	providerByID map[string]ProviderMeta
	providerList []string
	intentByKey  map[string]Intent // provider|method|name
)

// InitFromEnvAndConfig loads the registry file and applies env overrides.
// Registry data is immutable for the process lifetime once loaded.
func InitFromEnvAndConfig() error {
	providers, intents, err := loadRegistry()

	stateMu.Lock()
	defer stateMu.Unlock()

	providerByID = make(map[string]ProviderMeta)
	providerList = providerList[:0]
	for _, p := range providers {
		providerByID[p.Key] = p
		providerList = append(providerList, p.Key)
	}
	intentByKey = make(map[string]Intent, len(intents))
	for _, in := range intents {
		intentByKey[intentKey(in.Provider, in.Method, in.Name)] = in
	}
	initialized = true
	return err
}

func ensureInitialized() {
	stateMu.RLock()
	ok := initialized
	stateMu.RUnlock()
	if ok {
		return
	}
	_ = InitFromEnvAndConfig()
}

// ResetForTest resets in-memory state so tests can force reload.
func ResetForTest() {
	stateMu.Lock()
	defer stateMu.Unlock()
	initialized = false
	providerByID = nil
	providerList = nil
	intentByKey = nil
}

// GetProvider returns provider metadata by key.
func GetProvider(key string) (ProviderMeta, bool) {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	meta, ok := providerByID[normalizeKey(key)]
	if !ok {
		return ProviderMeta{}, false
	}
	if len(meta.StaticHeaders) > 0 {
		cp := make(map[string]string, len(meta.StaticHeaders))
		for k, v := range meta.StaticHeaders {
			cp[k] = v
		}
		meta.StaticHeaders = cp
	}
	return meta, true
}

// GetProviders returns all registered providers in key order.
func GetProviders() []ProviderMeta {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	result := make([]ProviderMeta, 0, len(providerList))
	for _, key := range providerList {
		meta, ok := providerByID[key]
		if !ok {
			continue
		}
		result = append(result, meta)
	}
	return result
}

// GetIntent returns the intent declaration for (provider, method, name).
func GetIntent(provider, method, name string) (Intent, bool) {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	in, ok := intentByKey[intentKey(normalizeKey(provider), method, name)]
	return in, ok
}

// GetIntents returns all intents declared for one provider.
func GetIntents(provider string) []Intent {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	provider = normalizeKey(provider)
	result := make([]Intent, 0, 8)
	for _, in := range intentByKey {
		if in.Provider == provider {
			result = append(result, in)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Method < result[j].Method
	})
	return result
}

func intentKey(provider, method, name string) string {
	return provider + "|" + strings.ToUpper(strings.TrimSpace(method)) + "|" + strings.ToLower(strings.TrimSpace(name))
}

func loadRegistry() ([]ProviderMeta, []Intent, error) {
	cfgProviders, loadErr := loadConfigProviders()
	if len(cfgProviders) == 0 {
		cfgProviders = defaultProviders()
	}

	providers := make([]ProviderMeta, 0, len(cfgProviders))
	intents := make([]Intent, 0, len(cfgProviders)*2)
	for _, cfg := range cfgProviders {
		meta, provIntents, ok := normalizeConfig(cfg)
		if !ok {
			continue
		}
		providers = append(providers, meta)
		intents = append(intents, provIntents...)
	}

	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Key < providers[j].Key
	})

	return providers, intents, loadErr
}

func loadConfigProviders() ([]ProviderConfig, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file %q: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %q: %w", path, err)
	}

	return cfg.Providers, nil
}

func resolveConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("UNIGATE_PROVIDERS_FILE")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/providers.yaml",
		"./config/providers.yaml",
		"/etc/unigate/providers.yaml",
		"/usr/local/etc/unigate/providers.yaml",
	}

	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates,
			filepath.Join(homeDir, ".config", "unigate", "providers.yaml"),
			filepath.Join(homeDir, ".unigate", "providers.yaml"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func normalizeConfig(cfg ProviderConfig) (ProviderMeta, []Intent, bool) {
	key := normalizeKey(cfg.Key)
	if !providerKeyRegexp.MatchString(key) {
		return ProviderMeta{}, nil, false
	}

	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}

	authType := strings.TrimSpace(strings.ToLower(cfg.AuthType))
	switch authType {
	case "oauth2", "oauth1", "api_token", "none":
	case "":
		authType = "oauth2"
	default:
		return ProviderMeta{}, nil, false
	}

	authScheme := strings.TrimSpace(strings.ToLower(cfg.AuthScheme))
	if authScheme == "" {
		authScheme = AuthSchemeBearer
	}
	switch authScheme {
	case AuthSchemeBearer:
	case AuthSchemeHeader, AuthSchemeQuery:
		if strings.TrimSpace(cfg.AuthField) == "" {
			return ProviderMeta{}, nil, false
		}
	default:
		return ProviderMeta{}, nil, false
	}

	contentType := strings.TrimSpace(cfg.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	apiEndpoint := strings.TrimSpace(cfg.APIEndpoint)
	if v := strings.TrimSpace(os.Getenv(providerEnvName(key, "API_ENDPOINT"))); v != "" {
		apiEndpoint = v
	}
	refreshURL := strings.TrimSpace(cfg.RefreshTokenURL)
	if v := strings.TrimSpace(os.Getenv(providerEnvName(key, "REFRESH_TOKEN_URL"))); v != "" {
		refreshURL = v
	}

	timeout := defaultTimeout
	if raw := strings.TrimSpace(cfg.Timeout); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv(providerEnvName(key, "TIMEOUT"))); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	meta := ProviderMeta{
		Key:             key,
		Enabled:         enabled,
		AuthType:        authType,
		APIEndpoint:     apiEndpoint,
		RefreshTokenURL: refreshURL,
		AuthScheme:      authScheme,
		AuthField:       strings.TrimSpace(cfg.AuthField),
		ContentType:     contentType,
		StaticHeaders:   normalizeHeaders(cfg.StaticHeaders),
		Timeout:         timeout,
	}

	intents := make([]Intent, 0, len(cfg.Intents))
	for _, ic := range cfg.Intents {
		name := strings.ToLower(strings.TrimSpace(ic.Name))
		method := strings.ToUpper(strings.TrimSpace(ic.Method))
		path := strings.TrimSpace(ic.Path)
		if name == "" || method == "" || path == "" {
			continue
		}
		intents = append(intents, Intent{
			Provider: key,
			Name:     name,
			Method:   method,
			Path:     path,
			Params:   append([]string(nil), ic.Params...),
		})
	}

	return meta, intents, true
}

func normalizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	normalized := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		value := strings.TrimSpace(v)
		if key == "" || value == "" {
			continue
		}
		normalized[key] = value
	}
	return normalized
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func providerEnvName(key, suffix string) string {
	upper := strings.ToUpper(key)
	replacer := strings.NewReplacer("-", "_", ".", "_", "/", "_", " ", "_")
	upper = replacer.Replace(upper)
	return fmt.Sprintf("UNIGATE_%s_%s", upper, suffix)
}
