package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
}

type createSaleItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type createSaleRequest struct {
	Items         []createSaleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string                  `json:"payment_method" validate:"required"`
	CustomerName  *string                 `json:"customer_name"`
	CustomerPhone *string                 `json:"customer_phone"`
	Notes         *string                 `json:"notes"`
	DueDate       *time.Time              `json:"due_date"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())

	var req createSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		fields := make([]httpx.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, httpx.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag() + " validation"})
		}
		httpx.ValidationProblem(w, fields)
		return
	}

	items := make([]SaleItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, SaleItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	sale, err := h.service.CreateSale(r.Context(), CreateSaleInput{
		CashierID:     identity.UserID,
		Items:         items,
		PaymentMethod: PaymentMethod(req.PaymentMethod),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
		DueDate:       req.DueDate,
		IP:            r.RemoteAddr,
	})
	if err != nil {
		h.logger.Warn("create sale", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}
