package registry

import (
	"fmt"
	"strings"
)

// FallbackResolver derives a refresh-token URL from a credential's config for
// providers with no usable static template.
type FallbackResolver func(config map[string]string) (string, error)

// fallbackResolvers maps provider keys to their token-URL derivation. A
// provider present here but missing the config it needs is a configuration
// error for that provider only, never a process-level failure.
var fallbackResolvers = map[string]FallbackResolver{
	"zendesk": func(config map[string]string) (string, error) {
		sub, err := requireConfig(config, "subdomain", "zendesk")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://%s.zendesk.com/oauth/tokens", sub), nil
	},
	"shopify": func(config map[string]string) (string, error) {
		sub, err := requireConfig(config, "subdomain", "shopify")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://%s.myshopify.com/admin/oauth/access_token", sub), nil
	},
	"salesforce": func(config map[string]string) (string, error) {
		endpoint := strings.TrimSpace(config["endpoint"])
		if endpoint == "" {
			endpoint = "https://login.salesforce.com"
		}
		return strings.TrimRight(endpoint, "/") + "/services/oauth2/token", nil
	},
	"zoho": func(config map[string]string) (string, error) {
		authEndpoint := strings.TrimSpace(config["auth_endpoint"])
		if authEndpoint == "" {
			authEndpoint = "https://accounts.zoho.com"
		}
		return strings.TrimRight(authEndpoint, "/") + "/oauth/v2/token", nil
	},
}

// ResolveFallbackURL invokes the provider's fallback resolver, if any.
// The second return reports whether a resolver is registered at all.
func ResolveFallbackURL(provider string, config map[string]string) (string, bool, error) {
	resolver, ok := fallbackResolvers[normalizeKey(provider)]
	if !ok {
		return "", false, nil
	}
	url, err := resolver(config)
	if err != nil {
		return "", true, err
	}
	return url, true, nil
}

func requireConfig(config map[string]string, field, provider string) (string, error) {
	value := strings.TrimSpace(config[field])
	if value == "" {
		return "", fmt.Errorf("provider %s requires %q in credential config", provider, field)
	}
	return value, nil
}
