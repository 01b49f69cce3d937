package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/model"
	"github.com/soumtech/tender-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tender API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		srv := &http.Server{Handler: newRouter(ctx, env)}

		zap.L().Info("starting server", zap.Int("port", port))
		return serveUntilShutdown(ctx, srv, ln)
	},
}

const shutdownTimeout = 15 * time.Second

// serveUntilShutdown serves on ln until ctx is canceled, then drains
// in-flight requests under a fresh timeout; the canceled signal context
// would abort the drain immediately.
func serveUntilShutdown(ctx context.Context, srv *http.Server, ln net.Listener) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	err := srv.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server serve")
	}
	// Serve returns the moment shutdown starts; wait for the drain.
	<-drained
	return nil
}

func newRouter(baseCtx context.Context, env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	h := &apiHandlers{env: env, baseCtx: baseCtx}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/tenders", func(r chi.Router) {
		r.Get("/", h.listTenders)
		r.Route("/{tenderID}", func(r chi.Router) {
			r.Get("/", h.getTender)
			r.Get("/state", h.getState)
			r.Get("/fields", h.getFields)
			r.Get("/provenance", h.getProvenance)
			r.Get("/analysis", h.getAnalysis)
			r.Get("/deep-analysis", h.getDeepAnalysis)
			r.Get("/deep-analysis/lots", h.getDeepLots)
			r.Get("/deep-analysis/execution", h.getDeepExecution)
			r.Post("/extract", h.postExtract)
			r.Post("/analyze", h.postAnalyze)
			r.Post("/deep-analysis", h.postDeepAnalysis)
			r.Post("/ask", h.postAsk)
			r.Post("/reset", h.postReset)
		})
	})

	return r
}

type apiHandlers struct {
	env *pipelineEnv
	// baseCtx outlives individual requests so background extraction keeps
	// running after the trigger response; it ends on server shutdown.
	baseCtx context.Context
}

// resolveTender accepts either a tender UUID or a portal reference.
func (h *apiHandlers) resolveTender(r *http.Request) (*model.Tender, error) {
	raw := chi.URLParam(r, "tenderID")
	if id, err := uuid.Parse(raw); err == nil {
		return h.env.Store.GetTender(r.Context(), id)
	}
	return h.env.Store.GetTenderByReference(r.Context(), raw)
}

func (h *apiHandlers) listTenders(w http.ResponseWriter, r *http.Request) {
	filter := store.TenderFilter{
		Status:       model.TenderStatus(r.URL.Query().Get("status")),
		Organization: r.URL.Query().Get("organization"),
		Limit:        100,
	}
	tenders, err := h.env.Store.ListTenders(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenders)
}

func (h *apiHandlers) getTender(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tender)
}

func (h *apiHandlers) getState(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := h.env.Pipeline.State(r.Context(), tender.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *apiHandlers) getFields(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	fields, err := h.env.Pipeline.Fields(r.Context(), tender.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (h *apiHandlers) getProvenance(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := h.env.Pipeline.Provenance(r.Context(), tender.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *apiHandlers) getAnalysis(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	meta, err := h.env.Pipeline.LatestAnalysis(r.Context(), tender.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *apiHandlers) getDeepAnalysis(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	deep, err := h.env.Pipeline.LatestDeep(r.Context(), tender.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deep)
}

func (h *apiHandlers) getDeepLots(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	deep, err := h.env.Pipeline.LatestDeep(r.Context(), tender.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deep.Lots)
}

// getDeepExecution returns the per-lot execution schedule.
func (h *apiHandlers) getDeepExecution(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	deep, err := h.env.Pipeline.LatestDeep(r.Context(), tender.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	type lotExecution struct {
		Number        string `json:"number,omitempty"`
		Subject       string `json:"subject,omitempty"`
		ExecutionDate string `json:"execution_date,omitempty"`
	}
	out := make([]lotExecution, 0, len(deep.Lots))
	for _, lot := range deep.Lots {
		out = append(out, lotExecution{Number: lot.Number, Subject: lot.Subject, ExecutionDate: lot.ExecutionDate})
	}
	writeJSON(w, http.StatusOK, out)
}

// postExtract triggers extraction and returns immediately; downloads and OCR
// can run for minutes, so the work continues off the request.
func (h *apiHandlers) postExtract(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}

	go func() {
		if err := h.env.Pipeline.ExtractTender(h.baseCtx, tender.ID); err != nil {
			zap.L().Error("triggered extraction failed",
				zap.String("tender_id", tender.ID.String()),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"tender_id": tender.ID.String(),
	})
}

func (h *apiHandlers) postAnalyze(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	meta, err := h.env.Pipeline.Analyze(r.Context(), tender.ID, force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *apiHandlers) postDeepAnalysis(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	deep, err := h.env.Pipeline.DeepAnalyze(r.Context(), tender.ID, force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deep)
}

func (h *apiHandlers) postAsk(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	answer, err := h.env.Pipeline.Ask(r.Context(), tender.ID, req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *apiHandlers) postReset(w http.ResponseWriter, r *http.Request) {
	tender, err := h.resolveTender(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.env.Pipeline.Reset(r.Context(), tender.ID); err != nil {
		writeError(w, err)
		return
	}
	state, err := h.env.Pipeline.State(r.Context(), tender.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case eris.Is(err, model.ErrAnalysisUnavailable):
		status = http.StatusConflict
	case eris.Is(err, model.ErrUnsupportedFormat):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
