package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/ctxkeys"
	"github.com/templui/habits/internal/handler"
	"github.com/templui/habits/internal/service"
)

// APIKey rejects requests that do not carry key in the "apikey" header or
// query parameter. An empty key disables the check. /health stays open.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get("apikey")
			if got == "" {
				got = r.URL.Query().Get("apikey")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				handler.WriteError(w, r, backend.NewError(http.StatusUnauthorized, "no_api_key", "Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate resolves a bearer token to the calling user and stores it in
// the request context. Requests without a token continue anonymously; a
// token that does not verify is rejected.
func Authenticate(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := authService.Authenticate(token)
			if err != nil {
				handler.WriteError(w, r, backend.NewError(http.StatusUnauthorized, backend.CodeUnauthorized, "JWT expired or invalid"))
				return
			}

			ctx := ctxkeys.WithUserID(r.Context(), userID)
			ctx = ctxkeys.WithAccessToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.UserID(r.Context()) == "" {
			handler.WriteError(w, r, backend.NewError(http.StatusUnauthorized, backend.CodeUnauthorized, "JWT required"))
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
