package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"shieldpool/internal/dto"
	"shieldpool/internal/pool"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CallerAddressKey is the gin context key holding the authenticated
// caller as a common.Address.
const CallerAddressKey = "caller_address"

// PoolHandler exposes the pool transitions and read models over HTTP.
type PoolHandler struct {
	service *pool.Service
	logger  logrus.FieldLogger
}

// NewPoolHandler creates a pool handler
func NewPoolHandler(service *pool.Service, logger logrus.FieldLogger) *PoolHandler {
	return &PoolHandler{service: service, logger: logger}
}

// ============ Transitions ============

// Initialize POST /api/pool/initialize
func (h *PoolHandler) Initialize(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req dto.InitializeRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.ToInitialize()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.Initialize(c.Request.Context(), caller, in); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "admin": caller.Hex()})
}

// Deposit POST /api/pool/deposit
func (h *PoolHandler) Deposit(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req dto.DepositRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.ToDeposit()
	if err != nil {
		badRequest(c, err)
		return
	}
	receipt, err := h.service.Deposit(c.Request.Context(), caller, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "index": receipt.Index})
}

// Withdraw POST /api/pool/withdraw
func (h *PoolHandler) Withdraw(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req dto.WithdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.ToWithdraw()
	if err != nil {
		badRequest(c, err)
		return
	}
	receipt, err := h.service.Withdraw(c.Request.Context(), caller, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := gin.H{"success": true}
	if receipt.NewIndex != nil {
		resp["new_index"] = *receipt.NewIndex
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateRoot POST /api/pool/root
func (h *PoolHandler) UpdateRoot(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req dto.RootUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	root, err := dto.ParseHash("new_root", req.NewRoot)
	if err != nil {
		badRequest(c, err)
		return
	}
	rootIndex, err := h.service.UpdateRoot(c.Request.Context(), caller, root)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "root_index": rootIndex})
}

// ============ Reads ============

// GetState GET /api/pool/state
func (h *PoolHandler) GetState(c *gin.Context) {
	snap, err := h.service.State(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "state": snap})
}

// GetCommitment GET /api/pool/commitments/:index
func (h *PoolHandler) GetCommitment(c *gin.Context) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.service.CommitmentAt(c.Request.Context(), index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "commitment": rec})
}

// ListCommitments GET /api/pool/commitments?from=&limit=
func (h *PoolHandler) ListCommitments(c *gin.Context) {
	from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		badRequest(c, err)
		return
	}
	recs, err := h.service.Commitments(c.Request.Context(), from, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "commitments": recs, "count": len(recs)})
}

// GetNullifier GET /api/pool/nullifiers/:hash
func (h *PoolHandler) GetNullifier(c *gin.Context) {
	hash, err := dto.ParseHash("hash", c.Param("hash"))
	if err != nil {
		badRequest(c, err)
		return
	}
	spent, err := h.service.IsSpent(c.Request.Context(), hash)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "nullifier_hash": hash, "spent": spent})
}

// GetRoot GET /api/pool/roots/:root
func (h *PoolHandler) GetRoot(c *gin.Context) {
	root, err := dto.ParseHash("root", c.Param("root"))
	if err != nil {
		badRequest(c, err)
		return
	}
	known, err := h.service.IsKnownRoot(c.Request.Context(), root)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "root": root, "known": known})
}

// GetCustody GET /api/pool/custody/:asset
func (h *PoolHandler) GetCustody(c *gin.Context) {
	asset, err := pool.ParseAsset(c.Param("asset"))
	if err != nil {
		badRequest(c, err)
		return
	}
	balance, err := h.service.CustodyBalance(c.Request.Context(), asset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"asset":   asset,
		"balance": strconv.FormatUint(balance, 10),
	})
}

// ============ Helpers ============

func callerFrom(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(CallerAddressKey)
	if addr, isAddr := v.(common.Address); ok && isAddr {
		return addr, true
	}
	c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
		Success: false,
		Error:   "Authentication required",
		Code:    "MISSING_CALLER",
	})
	return common.Address{}, false
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Success: false,
		Error:   "Invalid request",
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	})
}

// StatusFor maps a pool error to its HTTP status.
func StatusFor(err error) int {
	pe, ok := pool.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch pe.Kind {
	case pool.KindAuthorization:
		return http.StatusForbidden
	case pool.KindPaused:
		return http.StatusLocked
	case pool.KindValidation:
		return http.StatusBadRequest
	case pool.KindIntegrity, pool.KindCapacity:
		return http.StatusConflict
	case pool.KindLiquidity, pool.KindArithmetic:
		return http.StatusUnprocessableEntity
	case pool.KindState:
		if errors.Is(err, pool.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *PoolHandler) respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	resp := dto.ErrorResponse{Success: false, Code: pool.ErrorCode(err)}
	if pe, ok := pool.AsError(err); ok {
		resp.Error = string(pe.Kind)
		resp.Message = pe.Msg
	} else {
		h.logger.WithFields(logrus.Fields{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		}).Error("Pool request failed")
		resp.Error = "Internal error"
	}
	c.JSON(status, resp)
}
