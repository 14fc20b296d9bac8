package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/creditchat-backend/internal/http/response"
	"github.com/yungbote/creditchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
	"github.com/yungbote/creditchat-backend/internal/services"
)

var (
	errMissingToken = errors.New("missing token")
	errNoUser       = errors.New("no user in token")
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		log:         log.With("middleware", "AuthMiddleware"),
		authService: authService,
	}
}

// RequireAuth accepts a bearer header or a token query parameter. Browsers
// cannot set headers on websocket or EventSource requests, so the query form
// is needed there.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, status, err := am.authenticate(c.Request)
		if err != nil {
			response.RespondError(c, status, authCode(status), err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuthHTTP is RequireAuth for routes served outside gin, such as the
// websocket upgrade which needs the raw connection.
func (am *AuthMiddleware) RequireAuthHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, status, err := am.authenticate(r)
		if err != nil {
			response.WriteError(w, status, authCode(status), err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (am *AuthMiddleware) authenticate(r *http.Request) (context.Context, int, error) {
	token := extractToken(r)
	if token == "" {
		return nil, http.StatusUnauthorized, errMissingToken
	}
	ctx, err := am.authService.SetContextFromToken(r.Context(), token)
	if err != nil {
		am.log.Debug("Rejected token", "path", r.URL.Path, "error", err)
		return nil, http.StatusUnauthorized, err
	}
	if ctxutil.UserID(ctx) == uuid.Nil {
		return nil, http.StatusForbidden, errNoUser
	}
	return ctx, http.StatusOK, nil
}

func authCode(status int) string {
	if status == http.StatusForbidden {
		return "forbidden"
	}
	return "unauthorized"
}

func extractToken(r *http.Request) string {
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		return q
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > len("Bearer ") && strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return ""
}
