package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"streamchat-backend/internal/domain"
	"streamchat-backend/pkg/jwt"
	"streamchat-backend/pkg/response"
)

const (
	requesterKey = "requester"

	// GuestCookieName carries the client-side token of an anonymous viewer
	GuestCookieName = "guestAuth"
	// GuestHeader may be sent instead of the cookie by non-browser clients
	GuestHeader = "X-Guest-Id"

	guestCookieMaxAge = 365 * 24 * 60 * 60
)

// RequireAuth rejects requests without a valid access token. Websocket upgrades may
// pass the token as the access_token query parameter since browsers cannot set headers
// on them.
func RequireAuth(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		requester, err := authenticate(jwtManager, token)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		setRequester(c, requester)
		c.Next()
	}
}

// OptionalAuth resolves the caller when a token is present and treats everyone else
// as a guest identified by the guest cookie, issuing one when missing. A token that is
// present but invalid is still rejected.
func OptionalAuth(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			requester, err := authenticate(jwtManager, token)
			if err != nil {
				response.Unauthorized(c, "Invalid token")
				c.Abort()
				return
			}
			setRequester(c, requester)
			c.Next()
			return
		}

		setRequester(c, &domain.Requester{
			IsGuest: true,
			GuestID: guestID(c),
		})
		c.Next()
	}
}

// GetRequester returns the caller resolved by the auth middleware, nil when none ran
func GetRequester(c *gin.Context) *domain.Requester {
	value, exists := c.Get(requesterKey)
	if !exists {
		return nil
	}
	requester, _ := value.(*domain.Requester)
	return requester
}

func setRequester(c *gin.Context, requester *domain.Requester) {
	c.Set(requesterKey, requester)
	if requester.Authenticated() {
		c.Set("user_id", requester.ID)
	}
}

func authenticate(jwtManager *jwt.JWTManager, token string) (*domain.Requester, error) {
	claims, err := jwtManager.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	accountType := claims.AccountType
	if accountType == "" {
		accountType = domain.AccountViewer
	}

	return &domain.Requester{
		ID:          claims.UserID,
		Name:        claims.Username,
		AccountType: accountType,
	}, nil
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	if websocket.IsWebSocketUpgrade(c.Request) {
		if token := c.Query("access_token"); token != "" {
			return token, true
		}
	}

	return "", false
}

func guestID(c *gin.Context) string {
	if id := c.GetHeader(GuestHeader); isGuestToken(id) {
		return id
	}
	if id, err := c.Cookie(GuestCookieName); err == nil && isGuestToken(id) {
		return id
	}

	id := uuid.New().String()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(GuestCookieName, id, guestCookieMaxAge, "/", "", false, true)
	return id
}

func isGuestToken(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
