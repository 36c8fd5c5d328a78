package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bcrosbie/skillbench/internal/auth"
	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/orchestrate"
	"github.com/bcrosbie/skillbench/internal/service"
	"github.com/bcrosbie/skillbench/internal/trial"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds request bodies; a full trial with every event at its
// payload limit fits well inside it.
const maxBodyBytes = 8 << 20

type Server struct {
	skills     *service.SkillService
	authorizer *auth.Authorizer
	router     *mux.Router
}

// NewServer returns an http.Server serving the SkillBench API on addr. There
// is no write timeout: orchestration requests may legitimately run for the
// full trial timeout.
func NewServer(addr string, skills *service.SkillService, authorizer *auth.Authorizer) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(skills, authorizer),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewHandler(skills *service.SkillService, authorizer *auth.Authorizer) http.Handler {
	s := &Server{
		skills:     skills,
		authorizer: authorizer,
		router:     mux.NewRouter(),
	}
	s.setupRoutes()
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/recommend", s.handleRecommend).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	api.HandleFunc("/skills", s.handleListSkills).Methods(http.MethodGet)
	api.HandleFunc("/skills/{slug}", s.handleGetSkill).Methods(http.MethodGet)
	api.HandleFunc("/skills/{slug}/scores", s.handleSkillScores).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)

	api.Handle("/trials", s.requireExecution(s.handleExecuteTrial)).Methods(http.MethodPost)
	api.Handle("/trials/orchestrate", s.requireExecution(s.handleOrchestrate)).Methods(http.MethodPost)
	api.HandleFunc("/trials/{id}", s.handleGetTrial).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, domain.NotFound("route not found"))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, http.StatusMethodNotAllowed, map[string]any{
			"error":  "method_not_allowed",
			"detail": r.Method + " is not allowed on " + r.URL.Path,
		})
	})

	s.router.Use(loggingMiddleware)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		ctx := logger.WithFields(r.Context(), logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(rw, r.WithContext(ctx))

		entry := logger.G(ctx).WithFields(logrus.Fields{
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		})
		if rw.statusCode >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Info("http request")
	})
}

// requireExecution authorizes the request once and caches the decision in its
// context for the service layer.
func (s *Server) requireExecution(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromHeaders(r.Header.Get(auth.HeaderToken), r.Header.Get(auth.HeaderAuthorization))
		ctx, err := s.authorizer.Authorize(r.Context(), token)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(catalogPageHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.skills.Health(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, health)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var request service.RecommendRequest
	if r.Method == http.MethodPost {
		if err := decodeBody(w, r, &request); err != nil {
			writeError(r.Context(), w, err)
			return
		}
	} else {
		query := r.URL.Query()
		request.Task = query.Get("task")
		request.Agent = query.Get("agent")
		if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				writeError(r.Context(), w, domain.InvalidArgument("limit must be a non-negative integer"))
				return
			}
			request.Limit = limit
		}
	}

	result, err := s.skills.Recommend(r.Context(), request)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, result)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	items, err := s.skills.ListTasks(r.Context())
	respond(r.Context(), w, items, err)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	items, err := s.skills.ListSkills(r.Context())
	respond(r.Context(), w, items, err)
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	skill, err := s.skills.GetSkill(r.Context(), mux.Vars(r)["slug"])
	respond(r.Context(), w, skill, err)
}

func (s *Server) handleSkillScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.skills.SkillScores(r.Context(), mux.Vars(r)["slug"])
	respond(r.Context(), w, scores, err)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	items, err := s.skills.ListRuns(r.Context())
	respond(r.Context(), w, items, err)
}

func (s *Server) handleGetTrial(w http.ResponseWriter, r *http.Request) {
	detail, err := s.skills.GetTrial(r.Context(), mux.Vars(r)["id"])
	respond(r.Context(), w, detail, err)
}

func (s *Server) handleExecuteTrial(w http.ResponseWriter, r *http.Request) {
	var input trial.Input
	if err := decodeBody(w, r, &input); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	result, err := s.skills.ExecuteTrial(r.Context(), input)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, result)
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var request orchestrate.Request
	if err := decodeBody(w, r, &request); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	result, err := s.skills.Orchestrate(r.Context(), request)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, result)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if err == io.EOF {
			return domain.InvalidArgument("request body is required")
		}
		return domain.InvalidArgument("request body is not valid JSON: " + err.Error())
	}
	return nil
}

func respond(ctx context.Context, w http.ResponseWriter, payload any, err error) {
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, payload)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.G(ctx).WithError(err).Error("failed to encode JSON response")
	}
}

// writeError renders err as {"error": code, "detail": message}. Errors that
// are not AppErrors are reported as internal without leaking their text.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr, ok := domain.AsAppError(err)
	if !ok {
		appErr = domain.Internal("internal server error", err)
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.G(ctx).WithError(err).WithField("code", appErr.Code).Error("request failed")
	}
	writeJSON(ctx, w, status, map[string]any{
		"error":  appErr.Code,
		"detail": appErr.Message,
	})
}
