package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-utilities/billing-cli/internal/history"
	"github.com/atlas-utilities/billing-cli/internal/model"
	"github.com/atlas-utilities/billing-cli/internal/normalize"
	"github.com/atlas-utilities/billing-cli/internal/pipeline"
	"github.com/atlas-utilities/billing-cli/internal/render"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server for billing runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate history store")
		}

		norm, err := initNormalizer()
		if err != nil {
			return err
		}

		r := buildRouter(ctx, st, webhookRunner(st, norm))

		return startServer(ctx, r, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runFunc executes one pipeline run; the webhook handler spawns it per request.
type runFunc func(ctx context.Context, inputs []string, force bool)

// webhookRunner builds the run function the webhook triggers. The pipeline is
// rebuilt per request so force applies to that request only; the store and
// normalizer are shared across runs.
func webhookRunner(st history.Store, norm *normalize.Normalizer) runFunc {
	return func(ctx context.Context, inputs []string, force bool) {
		runCfg := *cfg
		if force {
			runCfg.Pipeline.ForceRegeneration = true
		}

		p, err := pipeline.New(&runCfg, st, norm, render.NewJSON(runCfg.Render.OutputDir), render.FSChecker{})
		if err != nil {
			zap.L().Error("webhook run setup failed", zap.Error(err))
			return
		}

		rows, err := loadRows(ctx, inputs, ingestOptions())
		if err != nil {
			zap.L().Error("webhook run ingest failed", zap.Error(err))
			return
		}

		report, err := p.Run(ctx, rows)
		if err != nil {
			zap.L().Error("webhook run failed", zap.Error(err))
			return
		}

		zap.L().Info("webhook run complete",
			zap.String("run_id", report.RunID),
			zap.Int("generated", report.Generated),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)

		sendAuditNotification(ctx, report)
	}
}

// buildRouter assembles the HTTP routes. The server context, not the request
// context, is handed to triggered runs so they survive the webhook response.
func buildRouter(ctx context.Context, st history.Store, run runFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/run", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Inputs []string `json:"inputs"`
			Force  bool     `json:"force"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		inputs := body.Inputs
		if len(inputs) == 0 {
			inputs = cfg.Ingest.Inputs
		}
		if len(inputs) == 0 {
			http.Error(w, `{"error":"inputs is required"}`, http.StatusBadRequest)
			return
		}

		// Run asynchronously
		if run != nil {
			go run(ctx, inputs, body.Force)
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "accepted",
			"inputs": inputs,
			"force":  body.Force,
		})
	})

	r.Get("/history", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()

		limit := 50
		if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
			limit = v
		}
		offset := 0
		if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
			offset = v
		}

		recs, err := st.List(req.Context(), history.Filter{
			WorkRequest: q.Get("work_request"),
			Limit:       limit,
			Offset:      offset,
		})
		if err != nil {
			zap.L().Error("history listing failed", zap.Error(err))
			http.Error(w, `{"error":"history unavailable"}`, http.StatusInternalServerError)
			return
		}

		if recs == nil {
			recs = []model.HistoryRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// resolvePort prefers the flag value over the config value.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}

	return nil
}
