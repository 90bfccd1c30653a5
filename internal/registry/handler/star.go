package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starregistry/internal/ledger"
	"github.com/jmerrifield20/starregistry/internal/ownership"
	"github.com/jmerrifield20/starregistry/internal/receipt"
	"go.uber.org/zap"
)

// StarHandler exposes the star registry ledger over HTTP.
type StarHandler struct {
	ledger   ledger.Ledger
	receipts *receipt.Issuer
	logger   *zap.Logger
}

// NewStarHandler creates a new StarHandler. receipts may be nil, in which
// case no receipts are issued and /receipts/verify is not mounted.
func NewStarHandler(l ledger.Ledger, receipts *receipt.Issuer, logger *zap.Logger) *StarHandler {
	return &StarHandler{ledger: l, receipts: receipts, logger: logger}
}

// Register mounts the star registry routes on the given router group.
func (h *StarHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/requestValidation", h.RequestValidation)
	rg.GET("/challenge/:address", h.Challenge)
	rg.POST("/submitstar", h.SubmitStar)

	rg.GET("/block/height/:height", h.BlockByHeight)
	rg.GET("/block/hash/:hash", h.BlockByHash)
	rg.GET("/blocks/owner/:address", h.StarsByOwner)

	rg.GET("/validate", h.Validate)
	rg.GET("/chain", h.Chain)

	if h.receipts != nil {
		rg.POST("/receipts/verify", h.VerifyReceipt)
	}
}

// BlockView is the public JSON form of a block.
type BlockView struct {
	Height       int     `json:"height"`
	Hash         string  `json:"hash"`
	PreviousHash *string `json:"previous_hash"`
	Timestamp    int64   `json:"timestamp"`
	Body         string  `json:"body"`
	Data         any     `json:"data"`
	Receipt      string  `json:"receipt,omitempty"`
}

func (h *StarHandler) view(b *ledger.Block) (BlockView, error) {
	data, err := b.DecodedPayload(h.ledger.Codec())
	if err != nil {
		return BlockView{}, err
	}
	v := BlockView{
		Height:    b.Height,
		Hash:      b.Hash,
		Timestamp: b.Timestamp,
		Body:      b.Payload,
		Data:      data,
	}
	if b.PreviousHash != ledger.NoPreviousHash {
		prev := b.PreviousHash
		v.PreviousHash = &prev
	}
	return v, nil
}

func (h *StarHandler) writeBlock(c *gin.Context, status int, b *ledger.Block) {
	v, err := h.view(b)
	if err != nil {
		h.logger.Error("decode block payload", zap.Int("height", b.Height), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "block payload is corrupt"})
		return
	}
	c.JSON(status, v)
}

// RequestValidation handles POST /requestValidation.
//
// Request body: {"address": "<bitcoin address or account>"}
//
// Response: {"message": "<address>:<unix seconds>:starRegistry"}, the message
// the owner must sign before submitting a star.
func (h *StarHandler) RequestValidation(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.writeChallenge(c, req.Address)
}

// Challenge handles GET /challenge/:address.
func (h *StarHandler) Challenge(c *gin.Context) {
	h.writeChallenge(c, c.Param("address"))
}

func (h *StarHandler) writeChallenge(c *gin.Context, address string) {
	msg, err := h.ledger.RequestChallenge(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidSubmission) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("request challenge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue challenge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// SubmitStar handles POST /submitstar.
//
// Request body: {"address", "message", "signature", "star"}. "record" is
// accepted as an alias of "star".
//
// Response: 201 with the new block, plus a receipt when receipts are enabled.
func (h *StarHandler) SubmitStar(c *gin.Context) {
	var req struct {
		Address   string `json:"address"`
		Message   string `json:"message"`
		Signature string `json:"signature"`
		Star      any    `json:"star"`
		Record    any    `json:"record"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Star == nil {
		req.Star = req.Record
	}

	b, err := h.ledger.SubmitRecord(c.Request.Context(), req.Address, req.Message, req.Signature, req.Star)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrOwnershipProofFailed):
		reason := proofFailureReason(err)
		RecordProofFailure(reason)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":  ledger.ErrOwnershipProofFailed.Error(),
			"reason": reason,
			"detail": err.Error(),
		})
		return
	case errors.Is(err, ledger.ErrInvalidSubmission):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		h.logger.Error("submit star", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append block"})
		return
	}

	v, err := h.view(b)
	if err != nil {
		h.logger.Error("decode new block", zap.Int("height", b.Height), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "block payload is corrupt"})
		return
	}
	if h.receipts != nil {
		token, err := h.receipts.Issue(req.Address, b)
		if err != nil {
			// The block is already on the chain; report it without a receipt.
			h.logger.Error("issue receipt", zap.Int("height", b.Height), zap.Error(err))
		} else {
			v.Receipt = token
		}
	}
	c.JSON(http.StatusCreated, v)
}

func proofFailureReason(err error) string {
	switch {
	case errors.Is(err, ownership.ErrExpiredChallenge):
		return "expired_challenge"
	case errors.Is(err, ownership.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ownership.ErrMalformedChallenge):
		return "malformed_challenge"
	default:
		return "unknown"
	}
}

// BlockByHeight handles GET /block/height/:height.
func (h *StarHandler) BlockByHeight(c *gin.Context) {
	height, err := strconv.Atoi(c.Param("height"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "height must be an integer"})
		return
	}

	b, ok := h.ledger.BlockByHeight(c.Request.Context(), height)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	h.writeBlock(c, http.StatusOK, b)
}

// BlockByHash handles GET /block/hash/:hash.
func (h *StarHandler) BlockByHash(c *gin.Context) {
	b, ok := h.ledger.BlockByHash(c.Request.Context(), c.Param("hash"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	h.writeBlock(c, http.StatusOK, b)
}

// StarsByOwner handles GET /blocks/owner/:address.
func (h *StarHandler) StarsByOwner(c *gin.Context) {
	address := c.Param("address")

	records, err := h.ledger.RecordsByOwner(c.Request.Context(), address)
	if err != nil {
		h.logger.Error("records by owner", zap.String("address", address), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}

	stars := make([]any, 0, len(records))
	for _, r := range records {
		stars = append(stars, r.Star)
	}
	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"stars":   stars,
	})
}

// Validate handles GET /validate. It walks the full chain and reports every
// integrity fault found.
func (h *StarHandler) Validate(c *gin.Context) {
	faults := h.ledger.Validate(c.Request.Context())
	SetChainFaults(len(faults))
	if len(faults) > 0 {
		h.logger.Warn("ledger integrity check failed", zap.Int("faults", len(faults)))
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  len(faults) == 0,
		"faults": faults,
	})
}

// Chain handles GET /chain and returns the current height and tip block.
func (h *StarHandler) Chain(c *gin.Context) {
	ctx := c.Request.Context()
	tip := h.ledger.Tip(ctx)
	v, err := h.view(tip)
	if err != nil {
		h.logger.Error("decode tip", zap.Int("height", tip.Height), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "block payload is corrupt"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"height": tip.Height,
		"codec":  h.ledger.Codec().Name(),
		"tip":    v,
	})
}

// VerifyReceipt handles POST /receipts/verify.
//
// Request body: {"token": "<receipt JWT>"}
//
// Response: the receipt claims and whether the named block is still on the
// chain at the same height.
func (h *StarHandler) VerifyReceipt(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := h.receipts.Verify(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid receipt", "detail": err.Error()})
		return
	}

	b, found := h.ledger.BlockByHash(c.Request.Context(), claims.BlockHash)
	onChain := found && b.Height == claims.Height

	resp := gin.H{
		"id":         claims.ID,
		"owner":      claims.Subject,
		"height":     claims.Height,
		"block_hash": claims.BlockHash,
		"on_chain":   onChain,
	}
	if claims.IssuedAt != nil {
		resp["issued_at"] = claims.IssuedAt.Time.UTC().Format(time.RFC3339)
	}
	if claims.ExpiresAt != nil {
		resp["expires_at"] = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
