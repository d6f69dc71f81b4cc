// Package handler exposes the fact log over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/factlog-protocol/factlog/internal/factlog"
)

const (
	defaultFactsLimit = 100
	maxFactsLimit     = 1000
)

// LogHandler exposes the fact log endpoints: the gate, fact submission and
// iteration, and the commitment/extension-proof protocol.
type LogHandler struct {
	log    *factlog.FactLog
	roots  *rootCache
	logger *zap.Logger
}

// NewLogHandler creates a LogHandler. cacheTTL bounds how long a computed
// bare commitment may be served without recomputation; zero disables the
// cache. Cached and recomputed commitments are bit-identical, the cache
// only saves the O(n) tree rebuild on hot read paths.
func NewLogHandler(log *factlog.FactLog, cacheTTL time.Duration, logger *zap.Logger) *LogHandler {
	return &LogHandler{log: log, roots: newRootCache(cacheTTL), logger: logger}
}

// Register mounts the log routes. requireOperator guards the gate-changing
// endpoints; proofLimiter throttles the O(n) commitment/proof endpoints.
// Either may be nil (mounted without that middleware), which is how tests
// exercise the handlers directly.
func (h *LogHandler) Register(rg *gin.RouterGroup, requireOperator, proofLimiter gin.HandlerFunc) {
	chain := func(mw gin.HandlerFunc, fn gin.HandlerFunc) []gin.HandlerFunc {
		if mw == nil {
			return []gin.HandlerFunc{fn}
		}
		return []gin.HandlerFunc{mw, fn}
	}

	rg.POST("/facts", h.SubmitFact)
	rg.GET("/facts", h.ListFacts)

	l := rg.Group("/log")
	{
		l.GET("", h.Status)
		l.POST("/enable", chain(requireOperator, h.Enable)...)
		l.POST("/disable", chain(requireOperator, h.Disable)...)
		l.GET("/commitment", chain(proofLimiter, h.Commitment)...)
		l.GET("/extension-proof", chain(proofLimiter, h.ExtensionProof)...)
		l.GET("/verify", chain(proofLimiter, h.Verify)...)
	}
}

// Status handles GET /log: the gate, the fact count, and the current root
// commitment when one exists.
func (h *LogHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	enabled, err := h.log.Enabled(ctx)
	if err != nil {
		h.logger.Error("log Enabled", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query log"})
		return
	}
	commitment, count, ok, err := h.cachedSnapshot(c)
	if err != nil {
		h.logger.Error("log Snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute commitment"})
		return
	}

	resp := gin.H{"enabled": enabled, "facts": count}
	if ok {
		resp["commitment"] = commitment
	}
	c.JSON(http.StatusOK, resp)
}

// Enable handles POST /log/enable.
func (h *LogHandler) Enable(c *gin.Context) {
	if err := h.log.Enable(c.Request.Context()); err != nil {
		h.logger.Error("log Enable", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enable log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// Disable handles POST /log/disable.
func (h *LogHandler) Disable(c *gin.Context) {
	if err := h.log.Disable(c.Request.Context()); err != nil {
		h.logger.Error("log Disable", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disable log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// SubmitFact handles POST /facts. The body is an arbitrary JSON document;
// it is canonicalized and appended when the log is enabled. A fact
// submitted while the log is disabled is dropped silently: the response is
// still 202, with stored=false, matching the gate's filter semantics.
func (h *LogHandler) SubmitFact(c *gin.Context) {
	var fact json.RawMessage
	if err := c.ShouldBindJSON(&fact); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON document"})
		return
	}

	stored, err := h.log.StoreFact(c.Request.Context(), fact)
	if err != nil {
		h.logger.Error("store fact", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store fact"})
		return
	}
	if !stored {
		RecordFactDropped()
		c.JSON(http.StatusAccepted, gin.H{"stored": false})
		return
	}

	RecordFactStored()
	h.roots.invalidate()
	c.JSON(http.StatusAccepted, gin.H{"stored": true, "receipt": uuid.New().String()})
}

// ListFacts handles GET /facts: forward iteration by default, backward
// with order=desc. limit caps the page size.
func (h *LogHandler) ListFacts(c *gin.Context) {
	ctx := c.Request.Context()

	order := c.DefaultQuery("order", "asc")
	if order != "asc" && order != "desc" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must be asc or desc"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultFactsLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxFactsLimit {
		limit = maxFactsLimit
	}

	seq := h.log.Facts(ctx)
	if order == "desc" {
		seq = h.log.FactsReverse(ctx)
	}

	facts := make([]json.RawMessage, 0, limit)
	for record, err := range seq {
		if err != nil {
			h.logger.Error("iterate facts", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read facts"})
			return
		}
		facts = append(facts, json.RawMessage(record))
		if len(facts) == limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "count": len(facts), "facts": facts})
}

// Commitment handles GET /log/commitment: the bare root commitment of the
// current tree, or 404 when the log is empty.
func (h *LogHandler) Commitment(c *gin.Context) {
	commitment, _, ok, err := h.cachedSnapshot(c)
	if err != nil {
		h.logger.Error("log Snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute commitment"})
		return
	}
	if !ok {
		RecordProofUnavailable()
		c.JSON(http.StatusNotFound, gin.H{"error": "commitment unavailable"})
		return
	}
	RecordProofIssued("bare")
	c.JSON(http.StatusOK, gin.H{"commitment": commitment})
}

// ExtensionProof handles GET /log/extension-proof. Without a latest query
// parameter it returns the bare root commitment; with one it returns a
// strict extension proof from that reference's baseline, 404 when no such
// proof exists, 400 when the reference cannot be parsed.
func (h *LogHandler) ExtensionProof(c *gin.Context) {
	latest := c.Query("latest")

	proof, ok, err := h.log.ExtensionProof(c.Request.Context(), latest)
	if err != nil {
		if errors.Is(err, factlog.ErrMalformedReference) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("extension proof", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute proof"})
		return
	}
	if !ok {
		RecordProofUnavailable()
		c.JSON(http.StatusNotFound, gin.H{"error": "proof unavailable"})
		return
	}

	kind := "bare"
	if latest != "" {
		kind = "extension"
	}
	RecordProofIssued(kind)
	c.JSON(http.StatusOK, gin.H{"proof": proof})
}

// Verify handles GET /log/verify?reference=: checks that a previously
// issued commitment reference is consistent with the current log.
func (h *LogHandler) Verify(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference query parameter is required"})
		return
	}

	valid, err := h.log.VerifyReference(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, factlog.ErrMalformedReference) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("verify reference", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify reference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// cachedSnapshot returns the fact count and the bare commitment over
// exactly those facts, serving from the TTL cache when the sequence length
// is unchanged. Cache entries are keyed by the count reported by the same
// Snapshot pass that computed the commitment, so a concurrent append can
// only cause a miss, never a count/commitment pairing skew.
func (h *LogHandler) cachedSnapshot(c *gin.Context) (string, int, bool, error) {
	ctx := c.Request.Context()

	count, err := h.log.Len(ctx)
	if err != nil {
		return "", 0, false, err
	}
	if commitment, ok := h.roots.get(count); ok {
		return commitment, count, true, nil
	}
	commitment, n, ok, err := h.log.Snapshot(ctx)
	if err != nil || !ok {
		return "", n, ok, err
	}
	h.roots.set(n, commitment)
	return commitment, n, true, nil
}
