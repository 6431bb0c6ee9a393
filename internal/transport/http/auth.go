package httptransport

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/logging"
)

// IssueToken mints a signed HS256 token for a console client.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// AuthMiddleware guards secured API routes. A static API token via the
// AuthorToken header is accepted for device provisioning; everything
// else must carry a valid Bearer JWT.
func AuthMiddleware(cfg config.AuthConfig, apiToken string, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		if apikey := c.GetHeader("AuthorToken"); apikey != "" {
			if apiToken == "" || apikey != apiToken {
				RespondError(c, http.StatusUnauthorized, "invalid API token", nil)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		raw := c.GetHeader("Authorization")
		if raw == "" {
			RespondError(c, http.StatusUnauthorized, "missing Authorization header", nil)
			c.Abort()
			return
		}
		raw = strings.TrimPrefix(raw, "Bearer ")

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || !token.Valid {
			if logger != nil {
				logger.WarnTag("HTTP", "rejected token: %v", err)
			}
			RespondError(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}
