package referral

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

// Exporter serialises referral listings to CSV. The export package provides
// the production implementation.
type Exporter interface {
	WriteReferrals(w io.Writer, referrals []Referral) error
}

// Handler exposes the referral ledger over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	exporter  Exporter
}

// NewHandler constructs a referral handler. exporter may be nil when CSV
// export is not needed.
func NewHandler(logger *slog.Logger, service *Service, exporter Exporter) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		exporter:  exporter,
	}
}

// MountRoutes wires referral routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/referrals", h.create)
	r.Get("/referrals", h.list)
	r.Get("/referrals/export", h.exportCSV)
	r.Get("/referrals/{id}", h.get)
	r.Post("/referrals/{id}/convert", h.convert)
	r.Post("/referrals/{id}/cancel", h.cancel)
	r.Post("/referrals/attribute", h.attribute)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateReferralRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ref, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("create referral", slog.Int64("doctor_id", req.DoctorID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ref)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ref, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ref)
}

// parseListQuery translates listing query parameters into the typed filter.
func parseListQuery(q url.Values) (ListReferralsRequest, error) {
	req := ListReferralsRequest{Limit: 50}
	if v := q.Get("doctor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, errors.New("doctor_id must be numeric")
		}
		req.DoctorID = &id
	}
	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, errors.New("customer_id must be numeric")
		}
		req.CustomerID = &id
	}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		switch status {
		case StatusPending, StatusConverted, StatusExpired, StatusCancelled:
			req.Status = &status
		default:
			return req, errors.New("unknown referral status " + v)
		}
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

	refs, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list referrals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	page := 1
	if req.Limit > 0 {
		page = req.Offset/req.Limit + 1
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"referrals":  refs,
		"pagination": shared.NewPagination(page, req.Limit, total),
	})
}

// exportCSV streams the filtered referral listing as a CSV attachment.
// Statuses are effective at export time, so stale pending rows show as
// expired.
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

	refs, _, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("export referrals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="referrals.csv"`)
	if err := h.exporter.WriteReferrals(w, refs); err != nil {
		h.logger.Error("write referrals csv", slog.Any("error", err))
	}
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ConvertReferralRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ref, err := h.service.Convert(r.Context(), id, req)
	if err != nil {
		h.logger.Error("convert referral", slog.String("referral_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ref)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel referral", slog.String("referral_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ref)
}

func (h *Handler) attribute(w http.ResponseWriter, r *http.Request) {
	var req AttributeOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ref, err := h.service.Attribute(r.Context(), req)
	if err != nil {
		h.logger.Error("attribute order", slog.Int64("customer_id", req.CustomerID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ref)
}
