package assignment

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dawaly/dawaly/internal/platform/httpx"
	"github.com/dawaly/dawaly/internal/shared"
)

// exportLimit caps the rows a single CSV export pulls.
const exportLimit = 1000

// Exporter serialises assignment listings to CSV. The export package
// provides the production implementation.
type Exporter interface {
	WriteAssignments(w io.Writer, assignments []Assignment) error
}

// Handler exposes the assignment registry over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	exporter  Exporter
}

// NewHandler constructs an assignment handler. exporter may be nil when CSV
// export is not needed.
func NewHandler(logger *slog.Logger, service *Service, exporter Exporter) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		exporter:  exporter,
	}
}

// MountRoutes wires assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/assignments", h.create)
	r.Get("/assignments", h.list)
	r.Get("/assignments/coverage", h.coverage)
	r.Get("/assignments/export", h.exportCSV)
	r.Get("/assignments/{id}", h.get)
	r.Post("/assignments/{id}/toggle", h.toggleActive)
	r.Delete("/assignments/{id}", h.delete)
	r.Post("/assignments/commission/bulk", h.bulkUpdateCommission)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("create assignment",
			slog.Int64("pharmacy_id", req.PharmacyID),
			slog.Int64("city_id", req.CityID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "assignment id must be numeric")
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

// parseListQuery translates listing query parameters into the typed filter.
func parseListQuery(q url.Values) (ListAssignmentsRequest, error) {
	req := ListAssignmentsRequest{Limit: 50}
	if v := q.Get("pharmacy_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, errors.New("pharmacy_id must be numeric")
		}
		req.PharmacyID = &id
	}
	if v := q.Get("city_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, errors.New("city_id must be numeric")
		}
		req.CityID = &id
	}
	if v := q.Get("governorate"); v != "" {
		req.Governorate = &v
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		req.IsActive = &active
	}
	if v := q.Get("is_primary"); v != "" {
		primary := v == "true"
		req.IsPrimary = &primary
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			req.Limit = limit
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			req.Offset = offset
		}
	}
	return req, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req, err := parseListQuery(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	assignments, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	page := 1
	if req.Limit > 0 {
		page = req.Offset/req.Limit + 1
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"assignments": assignments,
		"pagination":  shared.NewPagination(page, req.Limit, total),
	})
}

func (h *Handler) toggleActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "assignment id must be numeric")
		return
	}
	a, err := h.service.ToggleActive(r.Context(), id)
	if err != nil {
		h.logger.Error("toggle assignment", slog.Int64("assignment_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) bulkUpdateCommission(w http.ResponseWriter, r *http.Request) {
	var req BulkUpdateCommissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	updated, err := h.service.BulkUpdateCommission(r.Context(), req)
	if err != nil {
		h.logger.Error("bulk update commission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"updated":       updated,
		"updated_count": len(updated),
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "assignment id must be numeric")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete assignment", slog.Int64("assignment_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) coverage(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Coverage(r.Context())
	if err != nil {
		h.logger.Error("coverage report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// exportCSV streams the filtered assignment listing as a CSV attachment.
func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Export Unavailable", "csv export is not configured")
		return
	}
	req, err := parseListQuery(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	req.Limit = exportLimit
	req.Offset = 0

	assignments, _, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("export assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="assignments.csv"`)
	if err := h.exporter.WriteAssignments(w, assignments); err != nil {
		h.logger.Error("write assignments csv", slog.Any("error", err))
	}
}
