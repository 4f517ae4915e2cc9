package main

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// requireAPIKey authenticates machine callers via the X-Api-Key header,
// compared against a stored SHA-256 digest. An empty configured hash
// disables authentication (announced loudly at startup).
func requireAPIKey(apiKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-Api-Key")
			if key == "" {
				unauthorized(w)
				return
			}

			sum := sha256.Sum256([]byte(key))
			provided := hex.EncodeToString(sum[:])
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKeyHash)) != 1 {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error": "Unauthorized - invalid or missing API key",
	})
}
