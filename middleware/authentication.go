package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/puoklam/groupchat/conversation"
)

type ctxKey string

const (
	userKey      ctxKey = "user"
	deviceIPKey  ctxKey = "deviceIP"
	groupKey     ctxKey = "group"
	pushTokenKey ctxKey = "expoPushToken"
)

// Claims are the access token claims the service relies on. Tokens are
// issued by the account service.
type Claims struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

type UserEnsurer interface {
	Ensure(ctx context.Context, id, email, nickname string) (*conversation.User, error)
}

// Authenticator resolves the caller from the access token, taken from the
// accessToken cookie or a bearer Authorization header.
func Authenticator(logger *slog.Logger, secret []byte, users UserEnsurer) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			raw, err := accessToken(r)
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var claims Claims
			t, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !t.Valid || claims.Subject == "" {
				logger.Debug("Rejected access token", "device_ip", DeviceIP(r.Context()), "error", err)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			u, err := users.Ensure(r.Context(), claims.Subject, claims.Email, claims.Nickname)
			if err != nil {
				logger.Error("Cannot load caller", "user_id", claims.Subject, "error", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, u)
			h.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

func accessToken(r *http.Request) (string, error) {
	if c, err := r.Cookie("accessToken"); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && v != "" {
		return v, nil
	}
	return "", errors.New("missing access token")
}

// User returns the caller set by Authenticator.
func User(ctx context.Context) *conversation.User {
	u, _ := ctx.Value(userKey).(*conversation.User)
	return u
}

// WithUser stores u as the caller. Tests use it to skip token handling.
func WithUser(ctx context.Context, u *conversation.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}
