package directory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dawaly/dawaly/internal/platform/httpx"
	"github.com/dawaly/dawaly/internal/shared"
)

// Handler exposes the directory over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a directory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes wires directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/doctors", h.createDoctor)
	r.Get("/doctors", h.listDoctors)
	r.Get("/doctors/{id}", h.getDoctor)
	r.Patch("/doctors/{id}/referral-policy", h.updateReferralPolicy)
	r.Post("/pharmacies", h.createPharmacy)
	r.Get("/pharmacies/{id}", h.getPharmacy)
}

func (h *Handler) createDoctor(w http.ResponseWriter, r *http.Request) {
	var req CreateDoctorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doctor, err := h.service.CreateDoctor(r.Context(), req)
	if err != nil {
		h.logger.Error("create doctor", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doctor)
}

func (h *Handler) listDoctors(w http.ResponseWriter, r *http.Request) {
	req := ListDoctorsRequest{Limit: 50}
	if v := r.URL.Query().Get("is_active"); v != "" {
		active := v == "true"
		req.IsActive = &active
	}
	if v := r.URL.Query().Get("referral_enabled"); v != "" {
		enabled := v == "true"
		req.ReferralEnabled = &enabled
	}
	if v := r.URL.Query().Get("search"); v != "" {
		req.Search = &v
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			req.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			req.Offset = offset
		}
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doctors, total, err := h.service.ListDoctors(r.Context(), req)
	if err != nil {
		h.logger.Error("list doctors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	page := 1
	if req.Limit > 0 {
		page = req.Offset/req.Limit + 1
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"doctors":    doctors,
		"pagination": shared.NewPagination(page, req.Limit, total),
	})
}

func (h *Handler) getDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "doctor id must be numeric")
		return
	}
	doctor, err := h.service.GetDoctor(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doctor)
}

func (h *Handler) updateReferralPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "doctor id must be numeric")
		return
	}
	var req UpdateReferralPolicyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doctor, err := h.service.UpdateReferralPolicy(r.Context(), id, req)
	if err != nil {
		h.logger.Error("update referral policy", slog.Int64("doctor_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doctor)
}

func (h *Handler) createPharmacy(w http.ResponseWriter, r *http.Request) {
	var req CreatePharmacyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	pharmacy, err := h.service.CreatePharmacy(r.Context(), req)
	if err != nil {
		h.logger.Error("create pharmacy", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pharmacy)
}

func (h *Handler) getPharmacy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "pharmacy id must be numeric")
		return
	}
	pharmacy, err := h.service.GetPharmacy(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pharmacy)
}
