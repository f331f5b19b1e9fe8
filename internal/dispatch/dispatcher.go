// Package dispatch turns a hydrated request plus credential into one outbound
// HTTP call and normalizes the outcome. It performs no retries and writes
// nothing; retry policy and logging belong to the caller.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/unigate/unigate/internal/db/models"
	"github.com/unigate/unigate/internal/hydrate"
	"github.com/unigate/unigate/internal/registry"
)

const maxResponseBody = 8 * 1024 * 1024

var pathParamRegexp = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Response is a normalized 2xx provider answer.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// BuiltRequest records what was actually sent, for audit logging.
type BuiltRequest struct {
	Method      string
	APIEndpoint string
	Path        string
	URL         string
	Headers     map[string]string // auth values redacted
	Body        string
}

// Dispatcher sends fully assembled provider requests.
type Dispatcher struct {
	httpClient *http.Client
}

// NewDispatcher creates a dispatcher. Per-call deadlines come from provider
// metadata, so the shared client carries no timeout of its own.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{httpClient: &http.Client{}}
}

// NewDispatcherWithClient is used by tests to inject a transport.
func NewDispatcherWithClient(client *http.Client) *Dispatcher {
	return &Dispatcher{httpClient: client}
}

// Dispatch performs a single attempt against the provider. The returned
// BuiltRequest is non-nil whenever request assembly succeeded, including on
// dispatch failure, so the caller can log what went out.
func (d *Dispatcher) Dispatch(ctx context.Context, hr *hydrate.HydratedRequest, cred *models.Credential, meta registry.ProviderMeta) (*Response, *BuiltRequest, error) {
	built, derr := d.build(hr, cred, meta)
	if derr != nil {
		return nil, nil, derr
	}

	var bodyReader io.Reader
	if built.Body != "" {
		bodyReader = strings.NewReader(built.Body)
	}

	timeout := meta.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, built.Method, built.URL, bodyReader)
	if err != nil {
		return nil, built, &Error{Kind: KindBadRequest, Provider: meta.Key, Err: err}
	}
	for k, v := range built.Headers {
		req.Header.Set(k, v)
	}
	d.applyAuth(req, cred, meta)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, built, &Error{Kind: KindTransport, Provider: meta.Key, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, built, &Error{Kind: KindTransport, Provider: meta.Key, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, built, &Error{Kind: KindUnauthorized, Provider: meta.Key, StatusCode: resp.StatusCode, Body: respBody}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, built, &Error{Kind: KindProviderRejected, Provider: meta.Key, StatusCode: resp.StatusCode, Body: respBody}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, built, nil
}

// build assembles endpoint, path, query, headers and body without touching
// the network.
func (d *Dispatcher) build(hr *hydrate.HydratedRequest, cred *models.Credential, meta registry.ProviderMeta) (*BuiltRequest, *Error) {
	var config map[string]string
	if cred != nil {
		config = cred.ConfigMap()
	}

	endpoint, err := registry.ExpandTemplate(meta.APIEndpoint, config)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Provider: meta.Key, Err: err}
	}
	if endpoint == "" {
		return nil, &Error{Kind: KindBadRequest, Provider: meta.Key, Err: fmt.Errorf("provider %s has no API endpoint", meta.Key)}
	}

	path, perr := expandPath(hr.Path, hr.PathParams)
	if perr != nil {
		return nil, &Error{Kind: KindBadRequest, Provider: meta.Key, Err: perr}
	}

	fullURL := strings.TrimRight(endpoint, "/") + path
	if len(hr.QueryParams) > 0 {
		values := url.Values{}
		for k, v := range hr.QueryParams {
			values.Set(k, v)
		}
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + values.Encode()
	}

	headers := map[string]string{}
	for k, v := range meta.StaticHeaders {
		headers[k] = v
	}
	for k, v := range hr.Headers {
		headers[k] = v
	}

	body := ""
	if len(hr.Body) > 0 && hr.Method != http.MethodGet && hr.Method != http.MethodHead {
		switch meta.ContentType {
		case "application/x-www-form-urlencoded":
			form := url.Values{}
			for k, v := range hr.Body {
				form.Set(k, fmt.Sprintf("%v", v))
			}
			body = form.Encode()
		default:
			data, err := json.Marshal(hr.Body)
			if err != nil {
				return nil, &Error{Kind: KindBadRequest, Provider: meta.Key, Err: err}
			}
			body = string(data)
		}
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = meta.ContentType
		}
	}

	return &BuiltRequest{
		Method:      hr.Method,
		APIEndpoint: endpoint,
		Path:        path,
		URL:         fullURL,
		Headers:     headers,
		Body:        body,
	}, nil
}

// applyAuth attaches the credential per the provider's declared convention.
// Auth values are set directly on the request so they never appear in the
// loggable BuiltRequest headers.
func (d *Dispatcher) applyAuth(req *http.Request, cred *models.Credential, meta registry.ProviderMeta) {
	if cred == nil {
		return
	}
	payload, err := cred.DecodePayload()
	if err != nil {
		return
	}

	token := payload.AccessToken
	if meta.AuthType == models.AuthTypeAPIToken {
		token = payload.APIToken
		if token == "" {
			token = payload.AccessToken
		}
	}
	if token == "" {
		return
	}

	switch meta.AuthScheme {
	case registry.AuthSchemeHeader:
		req.Header.Set(meta.AuthField, token)
	case registry.AuthSchemeQuery:
		q := req.URL.Query()
		q.Set(meta.AuthField, token)
		req.URL.RawQuery = q.Encode()
	default:
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// expandPath substitutes {param} slots from hydrated path params. Any slot
// left unresolved rejects the request before dispatch.
func expandPath(template string, params map[string]string) (string, error) {
	var missing []string
	expanded := pathParamRegexp.ReplaceAllStringFunc(template, func(match string) string {
		name := pathParamRegexp.FindStringSubmatch(match)[1]
		value := strings.TrimSpace(params[name])
		if value == "" {
			missing = append(missing, name)
			return match
		}
		return url.PathEscape(value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved path params: %s", strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(expanded, "/") {
		expanded = "/" + expanded
	}
	return expanded, nil
}
