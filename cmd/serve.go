package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/config"
	"github.com/sells-group/doc-intake/internal/document"
	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/monitoring"
	"github.com/sells-group/doc-intake/internal/pipeline"
	"github.com/sells-group/doc-intake/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			env.Metrics,
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		srv := newServer(ctx, env.Pipeline, env.Store, env.Metrics, cfg.Server.MaxUploadMB)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.routes(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		srv.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// intakeRunner is the part of the pipeline the HTTP handlers drive.
type intakeRunner interface {
	Run(ctx context.Context, in pipeline.Input) (*model.Summary, error)
	Start(ctx context.Context, in pipeline.Input) (*model.Run, error)
	Process(ctx context.Context, runID string, in pipeline.Input) *model.Summary
}

// server holds the HTTP handlers. Background runs are bound to ctx, not to
// the request that started them.
type server struct {
	ctx       context.Context
	runner    intakeRunner
	store     store.Store
	metrics   *monitoring.Metrics
	maxUpload int64

	wg sync.WaitGroup
}

func newServer(ctx context.Context, runner intakeRunner, st store.Store, metrics *monitoring.Metrics, maxUploadMB int) *server {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &server{
		ctx:       ctx,
		runner:    runner,
		store:     st,
		metrics:   metrics,
		maxUpload: int64(maxUploadMB) << 20,
	}
}

// wait blocks until every background run has finished.
func (s *server) wait() { s.wg.Wait() }

func (s *server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/graph", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, pipeline.Mermaid())
		})
		r.Post("/runs", s.handleUpload)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	return r
}

func (s *server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, uploadPage)
}

// handleUpload accepts a multipart "file" and optional "alias". With
// ?async=1 it answers 202 with the run ID and processes in the background.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", s.maxUpload>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	if !document.Supported(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported file format: upload a .docx or .pdf file")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	in := pipeline.Input{
		Name:  header.Filename,
		Data:  data,
		Alias: r.FormValue("alias"),
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		run, err := s.runner.Start(r.Context(), in)
		if err != nil {
			zap.L().Error("upload: create run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not start run")
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runner.Process(s.ctx, run.ID, in)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": run.ID,
			"status": string(model.RunStatusRunning),
		})
		return
	}

	summary, err := s.runner.Run(r.Context(), in)
	if err != nil {
		zap.L().Error("upload: run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start run")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}

	phases, err := s.store.ListPhases(r.Context(), id)
	if err != nil {
		zap.L().Error("list phases failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	if phases == nil {
		phases = []model.RunPhase{}
	}
	writeJSON(w, http.StatusOK, runDetail{Run: run, Phases: phases})
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const uploadPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Document Intake</title>
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 3rem auto; }
label { display: block; margin-top: 1rem; }
pre { background: #f4f4f4; padding: 1rem; white-space: pre-wrap; }
</style>
</head>
<body>
<h1>Document Intake</h1>
<p>Upload a .docx or .pdf file. Client names found in its text and images are checked against the client list and each client's contacts are emailed the document.</p>
<form id="upload">
<label>Document <input type="file" name="file" accept=".docx,.pdf" required></label>
<label>Sender alias <input type="text" name="alias" placeholder="AI Agent"></label>
<p><button type="submit">Process</button></p>
</form>
<pre id="result"></pre>
<script>
document.getElementById("upload").addEventListener("submit", async (e) => {
  e.preventDefault();
  const out = document.getElementById("result");
  out.textContent = "Processing...";
  const resp = await fetch("/api/runs", { method: "POST", body: new FormData(e.target) });
  out.textContent = JSON.stringify(await resp.json(), null, 2);
});
</script>
</body>
</html>
`
