package main

import (
	"encoding/base64"
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
	"golang.org/x/time/rate"

	"github.com/fleetscore/ratesheet-cli/internal/model"
	"github.com/fleetscore/ratesheet-cli/internal/pipeline"
	"github.com/fleetscore/ratesheet-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for rate sheet analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAnalysis(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      newRouter(env),
			ReadTimeout:  5 * time.Minute,
			WriteTimeout: 5 * time.Minute,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// analyzeRequest is the POST /v1/analyze body. FileData is base64-encoded
// file content.
type analyzeRequest struct {
	FileName string         `json:"fileName"`
	FileData string         `json:"fileData"`
	Options  requestOptions `json:"options"`
}

type requestOptions struct {
	Provider        string   `json:"provider,omitempty"`
	Format          string   `json:"format,omitempty"`
	Mode            string   `json:"mode,omitempty"`
	InsuranceWeight *float64 `json:"insuranceWeight,omitempty"`
	Save            bool     `json:"save,omitempty"`
}

func newRouter(env *analysisEnv) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(rateLimiter(cfg.Server.RequestsPerMinute))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/analyze", handleAnalyze(env))
	r.Get("/v1/pricing/best", handleBestPricing(env))

	return r
}

// rateLimiter enforces a global request budget. Zero or negative disables
// limiting.
func rateLimiter(perMinute int) func(http.Handler) http.Handler {
	var limiter *rate.Limiter
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(perMinute)/60, perMinute)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if limiter != nil && !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func handleAnalyze(env *analysisEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(w, req.Body, int64(cfg.Server.MaxUploadMB)<<20)

		var body analyzeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.FileData == "" {
			writeError(w, http.StatusBadRequest, "fileData is required")
			return
		}

		data, err := base64.StdEncoding.DecodeString(body.FileData)
		if err != nil {
			writeError(w, http.StatusBadRequest, "fileData is not valid base64")
			return
		}

		fileName := body.FileName
		if fileName == "" {
			fileName = "upload"
		}

		opts := pipeline.Options{
			Provider:        body.Options.Provider,
			Format:          body.Options.Format,
			Mode:            body.Options.Mode,
			InsuranceWeight: body.Options.InsuranceWeight,
		}

		report, err := env.analyze(req.Context(), fileName, data, opts)
		if err != nil {
			status := http.StatusInternalServerError
			if isContentError(err) {
				status = http.StatusUnprocessableEntity
			}
			zap.L().Error("analysis failed", zap.String("file", fileName), zap.Error(err))
			writeError(w, status, err.Error())
			return
		}

		if body.Options.Save && env.Store != nil {
			if err := env.persist(req.Context(), report, body.Options.Provider); err != nil {
				zap.L().Error("persist failed", zap.String("run_id", report.RunID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to persist results")
				return
			}
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func handleBestPricing(env *analysisEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if env.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}

		q := req.URL.Query()
		filter := store.BestPricingFilter{
			Manufacturer: q.Get("manufacturer"),
			FuelType:     q.Get("fuel_type"),
		}
		var err error
		if filter.MaxMonthly, err = queryFloat(q.Get("max_monthly")); err != nil {
			writeError(w, http.StatusBadRequest, "max_monthly must be a number")
			return
		}
		if filter.MinScore, err = queryFloat(q.Get("min_score")); err != nil {
			writeError(w, http.StatusBadRequest, "min_score must be a number")
			return
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			filter.Limit = n
		}

		rows, err := env.Store.GetBestPricing(req.Context(), filter)
		if err != nil {
			zap.L().Error("best pricing query failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		if rows == nil {
			rows = []store.BestPricing{}
		}

		writeJSON(w, http.StatusOK, rows)
	}
}

// isContentError reports whether the analysis failure was caused by the
// uploaded content rather than the server.
func isContentError(err error) bool {
	return eris.Is(err, pipeline.ErrNoDataRows) ||
		eris.Is(err, pipeline.ErrColumnsUnknown) ||
		eris.Is(err, pipeline.ErrNoValidRecords) ||
		eris.Is(err, pipeline.ErrMalformedContent)
}

func queryFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorEnvelope{Error: msg})
}
