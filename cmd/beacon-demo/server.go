package main

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds request payloads
const maxBodyBytes = 1 << 20

// server exposes the dispatcher over HTTP for manual testing
type server struct {
	dispatcher *analytics.Dispatcher
	backends   *backends
	log        logrus.FieldLogger
}

// newRouter builds the HTTP routes. Every route is traced with otelhttp.
func newRouter(s *server, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverHandler)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/events/{name}", s.handleLogEvent).Methods(http.MethodPost)
	api.HandleFunc("/user", s.handleSetUser).Methods(http.MethodPut)
	api.HandleFunc("/user/properties", s.handleSetProperties).Methods(http.MethodPost)
	api.HandleFunc("/user/properties", s.handleClearProperties).Methods(http.MethodDelete)
	api.HandleFunc("/user/properties/{name}", s.handleSetProperty).Methods(http.MethodPut)
	api.HandleFunc("/user/properties/{name}/increment", s.handleIncrementProperty).Methods(http.MethodPost)
	api.HandleFunc("/user/properties/{name}", s.handleUnsetProperty).Methods(http.MethodDelete)
	api.HandleFunc("/profiles/{user}", s.handleGetProfile).Methods(http.MethodGet)

	return otelhttp.NewHandler(r, "beacon-demo")
}

// recoverHandler turns a handler panic into a 500 response
func (s *server) recoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == http.ErrAbortHandler {
				panic(v)
			}
			if err := observability.MustRecover(v); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				}).Error("Handler panicked")
				writeError(w, http.StatusInternalServerError, errors.New("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"event_loggers":    len(s.dispatcher.EventLoggers()),
		"data_directors":   len(s.dispatcher.UserDataDirectors()),
		"recovered_panics": s.dispatcher.RecoveredPanics(),
	})
}

type eventRequest struct {
	Properties   map[string]any `json:"properties"`
	OutOfSession bool           `json:"out_of_session"`
}

func (s *server) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req eventRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if len(req.Properties) == 0 && !req.OutOfSession {
		analytics.LogEvent(r.Context(), s.dispatcher, analytics.NewEventKey[analytics.Empty](name))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var opts []analytics.EventOption
	if req.OutOfSession {
		opts = append(opts, analytics.OutOfSession())
	}
	key := analytics.NewEventKey[map[string]any](name)
	if err := analytics.LogEventWith(r.Context(), s.dispatcher, key, req.Properties, opts...); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type userRequest struct {
	ID string `json:"id"`
}

func (s *server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}
	s.dispatcher.SetUserID(r.Context(), req.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSetProperties(w http.ResponseWriter, r *http.Request) {
	var model map[string]any
	if err := decodeBody(w, r, &model); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.dispatcher.SetUserProperties(r.Context(), model); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleClearProperties(w http.ResponseWriter, r *http.Request) {
	s.dispatcher.ClearUserProperties(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type propertyRequest struct {
	Value     any  `json:"value"`
	Immutable bool `json:"immutable"`
}

// handleSetProperty accepts string, bool or number values. JSON numbers
// are sent as float64 properties.
func (s *server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req propertyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var opts []analytics.PropertyOption
	if req.Immutable {
		opts = append(opts, analytics.WithMutability(analytics.Immutable))
	}

	ctx := r.Context()
	switch v := req.Value.(type) {
	case string:
		analytics.SetProperty(ctx, s.dispatcher, v, analytics.NewUserPropertyKey[string](name, opts...))
	case bool:
		analytics.SetProperty(ctx, s.dispatcher, v, analytics.NewUserPropertyKey[bool](name, opts...))
	case float64:
		analytics.SetProperty(ctx, s.dispatcher, v, analytics.NewUserPropertyKey[float64](name, opts...))
	default:
		writeError(w, http.StatusBadRequest, errors.New("value must be a string, bool or number"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type incrementRequest struct {
	Delta float64 `json:"delta"`
}

func (s *server) handleIncrementProperty(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	req := incrementRequest{Delta: 1}
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	analytics.IncrementProperty(r.Context(), s.dispatcher, req.Delta, analytics.NewUserPropertyKey[float64](name))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUnsetProperty(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	analytics.UnsetProperty(r.Context(), s.dispatcher, analytics.NewUserPropertyKey[string](name))
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProfile reads from the in-memory profile store, when enabled
func (s *server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.backends == nil || s.backends.profiles == nil {
		writeError(w, http.StatusNotFound, errors.New("memory adapter is not enabled"))
		return
	}

	profile, ok := s.backends.profiles.Profile(mux.Vars(r)["user"])
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("profile not found"))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
