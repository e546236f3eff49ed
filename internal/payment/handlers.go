package payment

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/fills-ai/payments-api/internal/common"
)

// Handler exposes HTTP endpoints for checkout initiation and status polling.
type Handler struct {
	Svc *Service
}

// Initiate handles POST /api/phonepe/initiate.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, string(common.KindInternal), "payment handler unavailable", nil)
		return
	}
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteError(w, common.ValidationError("invalid request body"))
		return
	}
	result, err := h.Svc.Initiate(r.Context(), req)
	if err != nil {
		logFailure(r, err, "phonepe_initiate_failed")
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

// Status handles GET /api/phonepe/status?orderId=.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, string(common.KindInternal), "payment handler unavailable", nil)
		return
	}
	result, err := h.Svc.Status(r.Context(), r.URL.Query().Get("orderId"))
	if err != nil {
		logFailure(r, err, "phonepe_status_failed")
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

func logFailure(r *http.Request, err error, msg string) {
	logger := zerolog.Ctx(r.Context())
	evt := logger.Warn()
	if common.KindOf(err) == common.KindInternal {
		evt = logger.Error()
	}
	evt.Err(err).Str("kind", string(common.KindOf(err))).Msg(msg)
}
