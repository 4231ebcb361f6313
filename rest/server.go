package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const DEFAULT_PAGE_LIMIT = 50

// TraceQuery is the read side of the engine served over http.
type TraceQuery interface {
	TracesByStatus(ctx context.Context, status model.TraceStatus, offset int, limit int) ([]*model.FlowTrace, error)
}

type Server struct {
	http.Server
	Port   int
	traces TraceQuery
}

func NewServer(httpPort int, traces TraceQuery, gatherer prometheus.Gatherer) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		traces: traces,
		Port:   httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/traces", s.HandleTraces).Methods(http.MethodGet)
	router.HandleFunc("/traces/running", s.HandleRunningTraces).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleTraces lists traces by the status query parameter, running when it is absent.
func (s *Server) HandleTraces(w http.ResponseWriter, r *http.Request) {
	status := model.TraceStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.TRACE_RUNNING
	}
	s.listTraces(w, r, status)
}

func (s *Server) HandleRunningTraces(w http.ResponseWriter, r *http.Request) {
	s.listTraces(w, r, model.TRACE_RUNNING)
}

func (s *Server) listTraces(w http.ResponseWriter, r *http.Request, status model.TraceStatus) {
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(r, "limit", DEFAULT_PAGE_LIMIT)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	traces, err := s.traces.TracesByStatus(r.Context(), status, offset, limit)
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.Error("error listing traces", zap.String("status", string(status)), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing traces")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"status": status, "offset": offset, "limit": limit, "traces": traces})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request", zap.String("method", r.Method), zap.String("uri", r.RequestURI), zap.Duration("took", time.Since(start)))
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
