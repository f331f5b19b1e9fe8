// Package gateway orchestrates one logical intent invocation:
// hydrate → ensure fresh credential → dispatch → (refresh once and retry on
// auth failure) → log. The dispatch outcome is the single source of truth
// returned to the caller; refresh failures never abort the call.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/unigate/unigate/internal/db"
	"github.com/unigate/unigate/internal/db/models"
	"github.com/unigate/unigate/internal/dispatch"
	"github.com/unigate/unigate/internal/hydrate"
	"github.com/unigate/unigate/internal/logging"
	"github.com/unigate/unigate/internal/monitor"
	"github.com/unigate/unigate/internal/refresh"
	"github.com/unigate/unigate/internal/registry"
	"gorm.io/gorm"
)

var (
	// ErrUnknownProvider means the provider key is not in the registry.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnknownIntent means the (provider, method, intent) triple is not declared.
	ErrUnknownIntent = errors.New("unknown intent")
)

// Gateway wires the hydration resolver, refresh manager, dispatcher and
// request-log monitor into the invoke-intent operation.
type Gateway struct {
	db         *gorm.DB
	resolver   *hydrate.Resolver
	refresher  *refresh.Manager
	dispatcher *dispatch.Dispatcher
	monitor    *monitor.Monitor
}

// New assembles a gateway over shared collaborators.
func New(database *gorm.DB, refresher *refresh.Manager, dispatcher *dispatch.Dispatcher, mon *monitor.Monitor) *Gateway {
	return &Gateway{
		db:         database,
		resolver:   hydrate.NewResolver(database),
		refresher:  refresher,
		dispatcher: dispatcher,
		monitor:    mon,
	}
}

// InvokeRequest names one logical call.
type InvokeRequest struct {
	UserID    string            `json:"user_id"`
	Provider  string            `json:"provider"`
	Method    string            `json:"method"`
	Intent    string            `json:"intent"`
	Overrides hydrate.Overrides `json:"overrides"`
}

// InvokeResult carries the provider's raw successful response.
type InvokeResult struct {
	StatusCode int             `json:"status_code"`
	Headers    http.Header     `json:"headers,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Invoke runs one intent invocation end to end. On provider failure the
// returned error is a *dispatch.Error carrying kind, status and error body.
func (g *Gateway) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	meta, ok := registry.GetProvider(provider)
	if !ok || !meta.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	intent, ok := registry.GetIntent(provider, req.Method, req.Intent)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s on %s", ErrUnknownIntent, req.Method, req.Intent, provider)
	}

	hr, err := g.resolver.Resolve(req.UserID, intent, req.Overrides)
	if err != nil {
		return nil, err
	}

	cred, err := db.GetCredential(g.db, req.UserID, provider)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	// Refresh failures are logged and the dispatch proceeds with whatever
	// credential is stored; the dispatch outcome decides.
	cred, rerr := g.refresher.EnsureFresh(ctx, cred)
	if rerr != nil {
		log.Printf("⚠️ Pre-dispatch refresh failed for %s/%s: %v", req.UserID, provider, rerr)
	}

	startedAt := time.Now()
	resp, built, derr := g.dispatcher.Dispatch(ctx, hr, cred, meta)

	// A single refresh-and-retry cycle on auth failure; a second auth
	// failure is surfaced as-is.
	var de *dispatch.Error
	if errors.As(derr, &de) && de.Kind == dispatch.KindUnauthorized && cred != nil {
		refreshed, rerr := g.refresher.ForceRefresh(ctx, cred)
		if rerr != nil {
			log.Printf("⚠️ Refresh after 401 failed for %s/%s: %v", req.UserID, provider, rerr)
		}
		cred = refreshed
		resp, built, derr = g.dispatcher.Dispatch(ctx, hr, cred, meta)
	}

	g.record(ctx, req, hr, built, resp, derr, startedAt)

	if derr != nil {
		return nil, derr
	}
	return &InvokeResult{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}, nil
}

// record persists the audit entry for the final dispatch attempt.
// Fire-and-forget through the monitor; never fails the call.
func (g *Gateway) record(ctx context.Context, req InvokeRequest, hr *hydrate.HydratedRequest, built *dispatch.BuiltRequest, resp *dispatch.Response, derr error, startedAt time.Time) {
	entry := models.RequestLog{
		UserID:      req.UserID,
		Provider:    hr.Provider,
		Method:      hr.Method,
		Intent:      hr.Intent,
		Trace:       logging.GetRequestID(ctx),
		StartedAt:   startedAt.UnixMilli(),
		CompletedAt: time.Now().UnixMilli(),
	}
	if built != nil {
		entry.Path = built.Path
		entry.APIEndpoint = built.APIEndpoint
		entry.RequestBody = built.Body
		if len(built.Headers) > 0 {
			if data, err := json.Marshal(built.Headers); err == nil {
				entry.Headers = string(data)
			}
		}
	}

	switch {
	case derr != nil:
		entry.IsError = true
		entry.Error = derr.Error()
		var de *dispatch.Error
		if errors.As(derr, &de) {
			entry.Status = de.StatusCode
			entry.ResponseBody = string(de.Body)
		}
	case resp != nil:
		entry.Status = resp.StatusCode
		entry.ResponseBody = string(resp.Body)
	}

	g.monitor.Record(entry)
}
