// Package middleware содержит HTTP middleware платёжного моста.
package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader — заголовок, в котором клиент передаёт ключ доступа.
const APIKeyHeader = "X-API-KEY"

// AuthMiddleware проверяет ключ доступа в заголовке запроса.
type AuthMiddleware struct {
	apiKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным ключом доступа.
// Пустой ключ отклоняет все запросы.
func NewAuthMiddleware(apiKey string) *AuthMiddleware {
	return &AuthMiddleware{
		apiKey: []byte(apiKey),
	}
}

// Middleware пропускает запрос дальше только при совпадении ключа доступа.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.valid(r.Header.Get(APIKeyHeader)) {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AuthMiddleware) valid(key string) bool {
	if len(a.apiKey) == 0 || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), a.apiKey) == 1
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}
