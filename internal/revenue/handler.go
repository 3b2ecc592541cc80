package revenue

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dawaly/dawaly/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// Exporter serialises a summary and rankings to CSV. The export package
// provides the production implementation.
type Exporter interface {
	WriteSummary(w io.Writer, summary *Summary) error
	WriteTopPerformers(w io.Writer, top *TopPerformers) error
}

// Handler exposes revenue reporting over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	exporter Exporter
}

// NewHandler constructs a revenue handler. exporter may be nil when CSV
// export is not needed.
func NewHandler(logger *slog.Logger, service *Service, exporter Exporter) *Handler {
	return &Handler{logger: logger, service: service, exporter: exporter}
}

// MountRoutes wires revenue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/revenue/summary", h.summary)
	r.Get("/revenue/top-performers", h.topPerformers)
	r.Get("/revenue/dashboard", h.dashboard)
	r.Get("/revenue/summary/export", h.exportSummary)
	r.Get("/revenue/top-performers/export", h.exportTopPerformers)
}

func (h *Handler) timeframe(r *http.Request) (Timeframe, error) {
	raw := r.URL.Query().Get("timeframe")
	if raw == "" {
		raw = string(Timeframe30Days)
	}
	return ParseTimeframe(raw)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	tf, err := h.timeframe(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.Summary(ctx, tf)
	if err != nil {
		h.logger.Error("revenue summary", slog.String("timeframe", string(tf)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) topPerformers(w http.ResponseWriter, r *http.Request) {
	tf, err := h.timeframe(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	top, err := h.service.TopPerformers(ctx, tf)
	if err != nil {
		h.logger.Error("top performers", slog.String("timeframe", string(tf)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, top)
}

// dashboard loads the summary and rankings concurrently.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	tf, err := h.timeframe(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var dashboard Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := h.service.Summary(ctx, tf)
		if err != nil {
			return err
		}
		dashboard.Summary = summary
		return nil
	})
	g.Go(func() error {
		top, err := h.service.TopPerformers(ctx, tf)
		if err != nil {
			return err
		}
		dashboard.TopPerformers = top
		return nil
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("revenue dashboard", slog.String("timeframe", string(tf)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dashboard)
}

func (h *Handler) exportSummary(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Export Unavailable", "csv export is not configured")
		return
	}
	tf, err := h.timeframe(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.Summary(ctx, tf)
	if err != nil {
		h.logger.Error("export summary", slog.String("timeframe", string(tf)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="revenue-summary-`+string(tf)+`.csv"`)
	if err := h.exporter.WriteSummary(w, summary); err != nil {
		h.logger.Error("write summary csv", slog.Any("error", err))
	}
}

func (h *Handler) exportTopPerformers(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Export Unavailable", "csv export is not configured")
		return
	}
	tf, err := h.timeframe(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	top, err := h.service.TopPerformers(ctx, tf)
	if err != nil {
		h.logger.Error("export top performers", slog.String("timeframe", string(tf)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="top-performers-`+string(tf)+`.csv"`)
	if err := h.exporter.WriteTopPerformers(w, top); err != nil {
		h.logger.Error("write top performers csv", slog.Any("error", err))
	}
}
