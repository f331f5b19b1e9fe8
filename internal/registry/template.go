package registry

import (
	"fmt"
	"regexp"
	"strings"
)

// Recognized placeholders for endpoint and token-URL templates. Anything else
// inside braces is rejected rather than silently passed through.
var allowedPlaceholders = map[string]bool{
	"auth_endpoint": true,
	"endpoint":      true,
	"subdomain":     true,
}

var placeholderRegexp = regexp.MustCompile(`\{([a-z_]+)\}`)

// ExpandTemplate substitutes {auth_endpoint}, {endpoint} and {subdomain}
// placeholders from a credential's config map. It fails when a recognized
// placeholder has no config value, or when the template names an unknown one.
func ExpandTemplate(template string, config map[string]string) (string, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return "", nil
	}

	var expandErr error
	expanded := placeholderRegexp.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRegexp.FindStringSubmatch(match)[1]
		if !allowedPlaceholders[name] {
			if expandErr == nil {
				expandErr = fmt.Errorf("unknown placeholder {%s} in template %q", name, template)
			}
			return match
		}
		value := strings.TrimSpace(config[name])
		if value == "" {
			if expandErr == nil {
				expandErr = fmt.Errorf("placeholder {%s} has no value in credential config", name)
			}
			return match
		}
		return value
	})
	if expandErr != nil {
		return "", expandErr
	}
	return expanded, nil
}
