// Admin Pool Handlers - governance operations. The pool checks that the
// caller is the configured admin; the admin middleware adds the network
// and second-factor checks.
package handlers

import (
	"net/http"

	"shieldpool/internal/dto"
	"shieldpool/internal/pool"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminPoolHandler handles admin pool operations
type AdminPoolHandler struct {
	*PoolHandler
	allowCredit bool
}

// NewAdminPoolHandler creates a new AdminPoolHandler instance
func NewAdminPoolHandler(service *pool.Service, logger logrus.FieldLogger, allowCredit bool) *AdminPoolHandler {
	return &AdminPoolHandler{
		PoolHandler: NewPoolHandler(service, logger),
		allowCredit: allowCredit,
	}
}

// PauseHandler POST /api/admin/pause
func (h *AdminPoolHandler) PauseHandler(c *gin.Context) {
	h.setPaused(c, true)
}

// UnpauseHandler POST /api/admin/unpause
func (h *AdminPoolHandler) UnpauseHandler(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *AdminPoolHandler) setPaused(c *gin.Context, paused bool) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	if err := h.service.SetPaused(c.Request.Context(), caller, paused); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"admin":  caller.Hex(),
		"paused": paused,
	}).Info("Pool pause flag set")
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": paused})
}

// SetRelayerHandler POST /api/admin/relayer
func (h *AdminPoolHandler) SetRelayerHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req dto.SetRelayerRequest
	if !bindJSON(c, &req) {
		return
	}
	relayer, err := dto.ParseAddress("relayer", req.Relayer)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.SetRelayer(c.Request.Context(), caller, relayer); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "relayer": relayer.Hex()})
}

// SetFeeRecipientHandler POST /api/admin/fee-recipient
func (h *AdminPoolHandler) SetFeeRecipientHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req dto.SetFeeRecipientRequest
	if !bindJSON(c, &req) {
		return
	}
	recipient, err := dto.ParseAddress("fee_recipient", req.FeeRecipient)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.SetFeeRecipient(c.Request.Context(), caller, recipient); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fee_recipient": recipient.Hex()})
}

// CreditHandler POST /api/admin/credit
// Funds a custody account on devnets. Disabled unless pool.allow_credit.
func (h *AdminPoolHandler) CreditHandler(c *gin.Context) {
	if !h.allowCredit {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Success: false,
			Error:   "Custody funding is disabled",
			Code:    "CREDIT_DISABLED",
		})
		return
	}
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req dto.CreditRequest
	if !bindJSON(c, &req) {
		return
	}
	asset, err := pool.ParseAsset(req.Asset)
	if err != nil {
		badRequest(c, err)
		return
	}
	owner, err := dto.ParseAddress("owner", req.Owner)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.CreditAsAdmin(c.Request.Context(), caller, asset, owner, req.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"admin":  caller.Hex(),
		"asset":  asset.String(),
		"owner":  owner.Hex(),
		"amount": req.Amount,
	}).Warn("Custody account credited")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
