// Package httpapi is the gateway's HTTP surface: the OAuth consent and
// callback endpoints, manual job dispatch, the shutdown-style cleanup sweep,
// and the operational ping/metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokengate/core"
)

// RunCleaner force-completes open job runs; *saga.Tracker satisfies it.
type RunCleaner interface {
	CleanupAll(ctx context.Context, maxCount int) (int, error)
}

// API wires the token-exchange service and the run tracker into a chi router.
type API struct {
	service    *core.Service
	dispatcher core.JobDispatcher
	cleaner    RunCleaner
	metrics    http.Handler
	logger     core.Logger
	cleanupMax int
}

type Option func(*API)

func WithLogger(logger core.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithRunCleaner(cleaner RunCleaner) Option {
	return func(a *API) {
		a.cleaner = cleaner
	}
}

func WithMetricsHandler(handler http.Handler) Option {
	return func(a *API) {
		a.metrics = handler
	}
}

func WithCleanupMaxCount(max int) Option {
	return func(a *API) {
		if max > 0 {
			a.cleanupMax = max
		}
	}
}

func New(service *core.Service, dispatcher core.JobDispatcher, opts ...Option) (*API, error) {
	if service == nil {
		return nil, fmt.Errorf("httpapi: service is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("httpapi: job dispatcher is required")
	}
	api := &API{
		service:    service,
		dispatcher: dispatcher,
		logger:     glog.Nop(),
		cleanupMax: core.DefaultCleanupMaxCount,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(api)
	}
	return api, nil
}

func (a *API) Router() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/ping", a.handlePing)
	if a.metrics != nil {
		router.Method(http.MethodGet, "/metrics", a.metrics)
	}

	router.Route("/auth/{product}", func(r chi.Router) {
		r.Get("/consent", a.handleConsent)
		r.Get("/callback", a.handleCallback)
		r.Post("/callback", a.handleCallback)
	})

	router.Post("/run/cleanup", a.handleCleanup)
	router.Post("/run/{job}", a.handleRun)

	return router
}

func (a *API) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleConsent redirects the browser to the provider's consent screen.
func (a *API) handleConsent(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	state := r.URL.Query().Get("state")

	target, err := a.service.ConsentURL(product, state)
	if err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(target) == "" {
		writeError(w, apiError(
			fmt.Sprintf("httpapi: product %s has no browser consent flow", strings.TrimSpace(strings.ToLower(product))),
			goerrors.CategoryBadInput,
			core.GatewayErrorBadInput,
		))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleCallback completes one authorization-code exchange. Providers that
// form-post their callback land on the POST route; both shapes collapse into
// the same event.
func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")

	params, err := callbackParams(r)
	if err != nil {
		writeError(w, apiError("httpapi: malformed callback payload", goerrors.CategoryBadInput, core.GatewayErrorBadInput))
		return
	}
	if providerErr := params.Get("error"); providerErr != "" {
		message := providerErr
		if description := params.Get("error_description"); description != "" {
			message = fmt.Sprintf("%s: %s", providerErr, description)
		}
		writeError(w, apiError(
			fmt.Sprintf("httpapi: provider returned an error: %s", message),
			goerrors.CategoryBadInput,
			core.GatewayErrorBadInput,
		))
		return
	}

	event := core.CallbackEvent{
		Code:  params.Get("code"),
		State: params.Get("state"),
		Extra: extraParams(params),
	}
	if err := a.service.HandleCallback(r.Context(), product, event); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"product": strings.TrimSpace(strings.ToLower(product)),
	})
}

// handleRun starts one execution of a named job and returns its run id
// without waiting for the body.
func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	jobName := chi.URLParam(r, "job")
	runID, err := a.dispatcher.Dispatch(r.Context(), jobName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":   runID,
		"job_name": strings.TrimSpace(jobName),
	})
}

func (a *API) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if a.cleaner == nil {
		writeError(w, apiError("httpapi: run cleanup is not configured", goerrors.CategoryInternal, core.GatewayErrorInternal))
		return
	}
	cancelled, err := a.cleaner.CleanupAll(r.Context(), a.cleanupMax)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

// callbackParams merges query and form parameters; form values win so a
// form-posted code is never shadowed by a stray query param.
func callbackParams(r *http.Request) (url.Values, error) {
	params := url.Values{}
	for key, values := range r.URL.Query() {
		params[key] = values
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for key, values := range r.PostForm {
			params[key] = values
		}
	}
	return params, nil
}

// extraParams keeps every callback parameter beyond the OAuth basics, so
// provider-specific extras (e.g. a realm id) reach normalization.
func extraParams(params url.Values) map[string]string {
	extra := make(map[string]string)
	for key, values := range params {
		switch key {
		case "code", "state", "error", "error_description":
			continue
		}
		if len(values) == 0 {
			continue
		}
		if value := strings.TrimSpace(values[0]); value != "" {
			extra[key] = value
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
