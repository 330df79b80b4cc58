package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/vendimo/marketplace/internal/domain/auth"
)

// security authenticates operator requests via HMAC-SHA256 hashed API
// keys presented in the X-Api-Key header.
type security struct {
	apikeys auth.Repository
	pepper  []byte
}

func newSecurity(apikeys auth.Repository, pepper []byte) *security {
	return &security{apikeys: apikeys, pepper: pepper}
}

// requireScope returns middleware that authenticates the API key and
// checks it carries the given scope.
func (s *security) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := s.authenticate(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !info.HasScope(scope) {
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"code":%d,"message":%q}`, status, message)
}

// authenticate computes the HMAC-SHA256 of the presented key, looks it up,
// and performs a constant-time comparison to prevent timing attacks.
func (s *security) authenticate(r *http.Request) (*auth.APIKeyInfo, bool) {
	key := r.Header.Get("X-Api-Key")
	if key == "" {
		return nil, false
	}

	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return nil, false
	}

	// Constant-time comparison guards against timing side-channels even
	// though the lookup already succeeded: the stored hash could differ
	// from what we computed if the repository returns a stale row.
	storedBytes, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, false
	}
	if subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
		return nil, false
	}
	return info, true
}
