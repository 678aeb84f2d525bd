package production

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/floorflow/internal/platform/httpx"
	"github.com/odyssey-erp/floorflow/internal/production/floors"
	"github.com/odyssey-erp/floorflow/internal/shared"
)

// Handler exposes article floor flow over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: newValidator()}
}

// MountRoutes attaches article routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/floors", h.floors)
		r.Post("/completed", h.recordCompleted)
		r.Post("/transfer", h.transfer)
		r.Post("/backfill-transfer", h.backfill)
		r.Post("/quality", h.updateQuality)
		r.Post("/quality/shift", h.shift)
		r.Post("/quality/confirm", h.confirm)
	})
}

type createRequest struct {
	OrderID         string `json:"orderId"`
	ArticleCode     string `json:"articleCode"`
	PlannedQuantity int    `json:"plannedQuantity"`
	RoutingMode     string `json:"routingMode" validate:"required"`
	Remarks         string `json:"remarks"`
}

type completedRequest struct {
	Floor    string `json:"floor"`
	Quantity *int   `json:"quantity" validate:"required"`
	Remarks  string `json:"remarks" validate:"max=500"`
}

type transferRequest struct {
	Quantity int    `json:"quantity"`
	Remarks  string `json:"remarks" validate:"max=500"`
}

type backfillRequest struct {
	Floor    string `json:"floor" validate:"required"`
	Quantity int    `json:"quantity"`
	Remarks  string `json:"remarks" validate:"max=500"`
}

type qualityRequest struct {
	M1            int     `json:"m1"`
	M2            int     `json:"m2"`
	M3            int     `json:"m3"`
	M4            int     `json:"m4"`
	RepairStatus  *string `json:"repairStatus"`
	RepairRemarks *string `json:"repairRemarks" validate:"omitempty,max=500"`
}

type shiftRequest struct {
	FromM2 int `json:"fromM2"`
	ToM1   int `json:"toM1"`
	ToM3   int `json:"toM3"`
	ToM4   int `json:"toM4"`
}

type confirmRequest struct {
	Confirmed *bool `json:"confirmed" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	mode, err := floors.ParseRoutingMode(req.RoutingMode)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.service.CreateArticle(r.Context(), CreateArticleInput{
		OrderID:         req.OrderID,
		ArticleCode:     req.ArticleCode,
		PlannedQuantity: req.PlannedQuantity,
		RoutingMode:     mode,
		Remarks:         req.Remarks,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
		Actor:           actorFrom(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) floors(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"articleId":    a.ID,
		"currentFloor": a.CurrentFloor,
		"progress":     a.Progress,
		"floors":       a.Summary(),
	})
}

func (h *Handler) recordCompleted(w http.ResponseWriter, r *http.Request) {
	var req completedRequest
	if !h.decode(w, r, &req) {
		return
	}
	var floor floors.Floor
	if strings.TrimSpace(req.Floor) != "" {
		f, err := floors.Parse(req.Floor)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		floor = f
	}
	res, err := h.service.RecordCompleted(r.Context(), chi.URLParam(r, "id"), RecordCompletedInput{
		Floor:    floor,
		Quantity: *req.Quantity,
		Remarks:  req.Remarks,
		Actor:    actorFrom(r),
	})
	h.respond(w, r, res, err)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.TransferToNextFloor(r.Context(), chi.URLParam(r, "id"), TransferInput{
		Quantity: req.Quantity,
		Remarks:  req.Remarks,
		Actor:    actorFrom(r),
	})
	h.respond(w, r, res, err)
}

func (h *Handler) backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if !h.decode(w, r, &req) {
		return
	}
	floor, err := floors.Parse(req.Floor)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.service.TransferFromFloor(r.Context(), chi.URLParam(r, "id"), BackfillTransferInput{
		Floor:    floor,
		Quantity: req.Quantity,
		Remarks:  req.Remarks,
		Actor:    actorFrom(r),
	})
	h.respond(w, r, res, err)
}

func (h *Handler) updateQuality(w http.ResponseWriter, r *http.Request) {
	var req qualityRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := QualityInput{
		M1:            req.M1,
		M2:            req.M2,
		M3:            req.M3,
		M4:            req.M4,
		RepairRemarks: req.RepairRemarks,
		Actor:         actorFrom(r),
	}
	if req.RepairStatus != nil {
		status := RepairStatus(*req.RepairStatus)
		in.RepairStatus = &status
	}
	res, err := h.service.UpdateQualityCategories(r.Context(), chi.URLParam(r, "id"), in)
	h.respond(w, r, res, err)
}

func (h *Handler) shift(w http.ResponseWriter, r *http.Request) {
	var req shiftRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.ShiftM2Items(r.Context(), chi.URLParam(r, "id"), ShiftInput{
		FromM2: req.FromM2,
		ToM1:   req.ToM1,
		ToM3:   req.ToM3,
		ToM4:   req.ToM4,
		Actor:  actorFrom(r),
	})
	h.respond(w, r, res, err)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.ConfirmFinalQuality(r.Context(), chi.URLParam(r, "id"), ConfirmInput{
		Confirmed: *req.Confirmed,
		Actor:     actorFrom(r),
	})
	h.respond(w, r, res, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(msgs, "; "))
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, res Result, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, title := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("production request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, status, title, "")
		return
	}
	httpx.Problem(w, status, title, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, ErrOutOfRange):
		return http.StatusUnprocessableEntity, "Quantity Out Of Range"
	case errors.Is(err, ErrInsufficientQuantity):
		return http.StatusUnprocessableEntity, "Insufficient Quantity"
	case errors.Is(err, ErrQualityOverflow):
		return http.StatusUnprocessableEntity, "Quality Overflow"
	case errors.Is(err, ErrShiftMismatch):
		return http.StatusUnprocessableEntity, "Shift Mismatch"
	case errors.Is(err, ErrIllegalFloorOperation):
		return http.StatusConflict, "Illegal Floor Operation"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrLocked):
		return http.StatusLocked, "Locked"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	}
	return http.StatusInternalServerError, "Internal Error"
}

func actorFrom(r *http.Request) Actor {
	id, name := shared.ActorFromContext(r.Context())
	return Actor{ID: id, Name: name}
}
