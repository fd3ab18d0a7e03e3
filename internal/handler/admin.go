package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/FooledKiwi/ridemap-api/internal/storage"
)

// KeyAdmin manages Maps API key overrides.
type KeyAdmin interface {
	SetGlobalKey(ctx context.Context, key string) error
	SetRegionKey(ctx context.Context, region, key string) error
	ListRegionKeys(ctx context.Context) ([]storage.RegionKey, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	IssueAccessToken(userID int32, username, role string) (string, error)
}

// AdminHandler holds dependencies for admin endpoints.
type AdminHandler struct {
	keys   KeyAdmin
	tokens TokenIssuer
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(keys KeyAdmin, tokens TokenIssuer) *AdminHandler {
	return &AdminHandler{keys: keys, tokens: tokens}
}

// ---------------------------------------------------------------------------
// Maps key management
// ---------------------------------------------------------------------------

type setKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// mask hides all but the last four characters of a key.
func mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// SetGlobalKey handles PUT /api/v1/admin/maps/key
func (h *AdminHandler) SetGlobalKey(c *gin.Context) {
	var req setKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.keys.SetGlobalKey(c.Request.Context(), req.Key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store key"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearGlobalKey handles DELETE /api/v1/admin/maps/key
func (h *AdminHandler) ClearGlobalKey(c *gin.Context) {
	if err := h.keys.SetGlobalKey(c.Request.Context(), ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear key"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRegionKeys handles GET /api/v1/admin/maps/keys
//
// Keys are returned masked.
func (h *AdminHandler) ListRegionKeys(c *gin.Context) {
	keys, err := h.keys.ListRegionKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keys"})
		return
	}

	out := make([]gin.H, len(keys))
	for i, k := range keys {
		out[i] = gin.H{
			"region":     k.Region,
			"key":        mask(k.APIKey),
			"updated_at": k.UpdatedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}

// SetRegionKey handles PUT /api/v1/admin/maps/keys/:region
func (h *AdminHandler) SetRegionKey(c *gin.Context) {
	region := strings.TrimSpace(c.Param("region"))
	var req setKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.keys.SetRegionKey(c.Request.Context(), region, req.Key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store key"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteRegionKey handles DELETE /api/v1/admin/maps/keys/:region
func (h *AdminHandler) DeleteRegionKey(c *gin.Context) {
	if err := h.keys.SetRegionKey(c.Request.Context(), c.Param("region"), ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete key"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Access tokens
// ---------------------------------------------------------------------------

type issueTokenRequest struct {
	UserID   int32  `json:"user_id" binding:"required,gt=0"`
	Username string `json:"username" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=rider driver admin"`
}

// IssueToken handles POST /api/v1/admin/tokens
//
// Provisions an access token for a device or user.
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.tokens.IssueAccessToken(req.UserID, req.Username, req.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": token, "token_type": "Bearer"})
}
