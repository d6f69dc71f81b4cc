package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/factlog-protocol/factlog/internal/identity"
)

// AuthHandler exchanges the operator password for a short-lived operator
// token. The password itself is never stored; the handler holds only its
// bcrypt hash.
type AuthHandler struct {
	passwordHash []byte
	tokens       *identity.TokenIssuer
	logger       *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(passwordHash []byte, tokens *identity.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{passwordHash: passwordHash, tokens: tokens, logger: logger}
}

// Register mounts the auth routes.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
}

type loginRequest struct {
	Subject  string `json:"subject"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if len(h.passwordHash) == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "operator login is not configured"})
		return
	}
	if err := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)); err != nil {
		h.logger.Warn("operator login rejected", zap.String("subject", req.Subject))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = identity.RoleOperator
	}
	token, err := h.tokens.Issue(subject)
	if err != nil {
		h.logger.Error("issue operator token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// RequireOperator returns a middleware that admits only requests bearing a
// valid operator token.
func RequireOperator(tokens *identity.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		const scheme = "Bearer "
		if !strings.HasPrefix(auth, scheme) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator token required"})
			return
		}
		claims, err := tokens.Verify(strings.TrimPrefix(auth, scheme))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator token"})
			return
		}
		c.Set("operator", claims.Subject)
		c.Next()
	}
}
