package mpesa

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// Handler wires HTTP endpoints for M-Pesa payments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers authenticated M-Pesa routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stkpush", h.handleSTKPush)
	r.Get("/status/{checkoutRequestID}", h.handleStatus)
}

// MountCallbackRoutes registers the public gateway callback. The gateway
// cannot carry a bearer token, so this route sits outside the auth
// middleware.
func (h *Handler) MountCallbackRoutes(r chi.Router) {
	r.Post("/callback", h.handleCallback)
}

type stkPushRequest struct {
	SaleID int64  `json:"sale_id" validate:"required,gt=0"`
	Phone  string `json:"phone" validate:"required,e164"`
}

func (h *Handler) handleSTKPush(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())

	var req stkPushRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, []httpx.FieldError{{Field: "phone", Message: "sale_id and an E.164 phone number are required"}})
		return
	}

	txn, err := h.service.Initiate(r.Context(), InitiateInput{
		SaleID:  req.SaleID,
		Phone:   req.Phone,
		ActorID: identity.UserID,
		IP:      r.RemoteAddr,
	})
	if err != nil {
		h.logger.Warn("stk push", slog.Int64("sale_id", req.SaleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, txn)
}

// callbackEnvelope mirrors the Daraja result payload.
type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (e callbackEnvelope) receipt() *string {
	for _, item := range e.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if v, ok := item.Value.(string); ok && v != "" {
				return &v
			}
		}
	}
	return nil
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	var env callbackEnvelope
	if err := httpx.DecodeJSON(r, &env); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed callback body")
		return
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing CheckoutRequestID")
		return
	}

	_, err := h.service.Reconcile(r.Context(), ReconcileInput{
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		MpesaReceipt:      env.receipt(),
		IP:                r.RemoteAddr,
	})
	switch {
	case err == nil, errors.Is(err, ErrAlreadyFinalized):
		// Gateways retry callbacks; a repeat delivery is acknowledged
		// without touching the stored outcome.
		httpx.JSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
	default:
		h.logger.Error("mpesa callback", slog.String("checkout_request_id", cb.CheckoutRequestID), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkoutRequestID")
	txn, err := h.service.Status(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}
