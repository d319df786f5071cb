package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/runner"
	"github.com/talentops/bgvsync/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger server and run scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRunner(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Scheduler.Enabled {
			go runner.NewScheduler(env.Runner, cfg.Scheduler).Run(ctx)
		}

		router := newRouter(ctx, env)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer runs the HTTP server until ctx is cancelled, then drains
// in-flight requests before returning.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// triggerResponse is the envelope every trigger endpoint returns.
type triggerResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

// newRouter builds the trigger API. Background runs are launched under
// runCtx, the process context, so a finished request does not cancel them.
func newRouter(runCtx context.Context, env *runnerEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":                     "ok",
			"run_state":                  env.Runner.State(),
			"scheduler_enabled":          cfg.Scheduler.Enabled,
			"scheduler_interval_minutes": cfg.Scheduler.IntervalMinutes,
		})
	})

	r.Post("/login-and-run", func(w http.ResponseWriter, req *http.Request) {
		run, err := env.Runner.Start(runCtx, "manual")
		if err != nil {
			writeTriggerError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, triggerResponse{
			OK:      true,
			Message: "run started",
			Result:  runRef(run),
		})
	})

	r.Post("/trigger-fetch", func(w http.ResponseWriter, req *http.Request) {
		var payload runner.HandoffPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, triggerResponse{OK: false, Message: "invalid request body"})
			return
		}
		if payload.SessionID == "" || payload.APIMap == nil {
			writeJSON(w, http.StatusBadRequest, triggerResponse{OK: false, Message: "session_id and api_map are required"})
			return
		}

		sess := &model.Session{
			ID:           payload.SessionID,
			CreatedAt:    time.Now().UTC(),
			StorageState: payload.StorageState,
		}
		persistHandoff(env, sess, payload.APIMap)

		run, err := env.Runner.StartFetch(runCtx, sess, payload.APIMap, "peer")
		if err != nil {
			writeTriggerError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, triggerResponse{
			OK:      true,
			Message: "fetch started",
			Result:  runRef(run),
		})
	})

	r.Post("/upload-to-sheets", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Dir string `json:"dir"`
		}
		if req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, triggerResponse{OK: false, Message: "invalid request body"})
				return
			}
		}
		dir := body.Dir
		if dir == "" {
			dir = cfg.Fetch.OutDir
		}

		sync, err := env.Runner.RunSheets(req.Context(), dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				writeJSON(w, http.StatusNotFound, triggerResponse{OK: false, Message: "no exports found; run a fetch first"})
				return
			}
			writeTriggerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, triggerResponse{
			OK:      true,
			Message: "sheets synced",
			Result:  sync,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, triggerResponse{OK: false, Message: "limit must be a positive integer"})
				return
			}
			limit = n
		}

		runs, err := env.Ledger.ListRuns(req.Context(), store.RunFilter{
			Status:  model.RunStatus(req.URL.Query().Get("status")),
			Trigger: req.URL.Query().Get("trigger"),
			Limit:   limit,
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, triggerResponse{OK: false, Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")

		run, err := env.Ledger.GetRun(req.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeJSON(w, http.StatusNotFound, triggerResponse{OK: false, Message: "run not found"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, triggerResponse{OK: false, Message: err.Error()})
			return
		}

		outcomes, err := env.Ledger.ListCandidateOutcomes(req.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, triggerResponse{OK: false, Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": run, "candidates": outcomes})
	})

	return r
}

// persistHandoff saves the received session and endpoint map so a later
// `fetch --session` can replay them. Failures only cost replayability.
func persistHandoff(env *runnerEnv, sess *model.Session, m *model.EndpointMap) {
	if err := env.Sessions.SaveSession(sess); err != nil {
		zap.L().Warn("persist handoff session failed", zap.Error(err))
	}
	if err := env.Sessions.SaveEndpointMap(m); err != nil {
		zap.L().Warn("persist handoff map failed", zap.Error(err))
	}
}

// runRef is the result payload for endpoints that launch background runs.
func runRef(run *model.Run) map[string]string {
	if run == nil {
		return nil
	}
	return map[string]string{
		"run_id": run.ID,
		"status": string(run.Status),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeTriggerError maps runner errors onto trigger responses. An active run
// is a conflict, not a server fault.
func writeTriggerError(w http.ResponseWriter, err error) {
	if errors.Is(err, runner.ErrRunInProgress) {
		writeJSON(w, http.StatusConflict, triggerResponse{OK: false, Message: "run already in progress"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, triggerResponse{OK: false, Message: err.Error()})
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		zap.L().Info("http request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(req.Context())),
		)
	})
}
