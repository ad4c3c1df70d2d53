package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"unilib/internal/repository"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware gates service-to-service endpoints (desk terminals,
// the SPA backend). Clients send the plaintext key in X-API-Key; only
// its SHA-256 is ever stored or compared.
func APIKeyMiddleware(keys repository.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			c.Abort()
			return
		}

		sum := sha256.Sum256([]byte(provided))
		key, err := keys.FindByHash(c.Request.Context(), hex.EncodeToString(sum[:]))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			c.Abort()
			return
		}

		// last-used tracking is best-effort
		_ = keys.TouchLastUsed(c.Request.Context(), key.ID)

		c.Set("apiKeyName", key.Name)
		c.Next()
	}
}

// HashAPIKey returns the stored form of a plaintext key. Shared with the
// libctl apikey command so both sides hash identically.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
