package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/examcraft/qbank/internal/qbank"
)

type contextKey string

const callerKey contextKey = "caller"

// Authenticator maps API keys to callers. Keys in bulkKeys additionally
// grant the bulk permission the core's operations require.
type Authenticator struct {
	keys     map[string]string // key -> caller name
	bulkKeys map[string]bool
	require  bool
}

// NewAuthenticator builds the key table. When require is false, anonymous
// requests pass with the bulk permission (development mode).
func NewAuthenticator(apiKeys, bulkKeys []string, require bool) *Authenticator {
	a := &Authenticator{
		keys:     make(map[string]string, len(apiKeys)+len(bulkKeys)),
		bulkKeys: make(map[string]bool, len(bulkKeys)),
		require:  require,
	}
	for i, k := range apiKeys {
		a.keys[k] = callerName(i)
	}
	for _, k := range bulkKeys {
		if _, ok := a.keys[k]; !ok {
			a.keys[k] = callerName(len(a.keys))
		}
		a.bulkKeys[k] = true
	}
	return a
}

func callerName(i int) string {
	return "api-client-" + string(rune('a'+i%26))
}

// Middleware authenticates the request and stashes the caller in the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}

		caller, ok := a.lookup(key)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) lookup(key string) (qbank.Caller, bool) {
	if !a.require {
		return qbank.Caller{ID: "anonymous", Name: "anonymous", CanBulk: true}, true
	}
	if key == "" {
		return qbank.Caller{}, false
	}
	for candidate, name := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return qbank.Caller{ID: keyID(candidate), Name: name, CanBulk: a.bulkKeys[candidate]}, true
		}
	}
	return qbank.Caller{}, false
}

// keyID derives a stable, non-secret caller ID from the key so rate-limit
// windows and audit lines never carry raw credentials.
func keyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key-" + hex.EncodeToString(sum[:4])
}

// CallerFromContext returns the authenticated caller, or a zero caller when
// the middleware did not run.
func CallerFromContext(ctx context.Context) qbank.Caller {
	caller, _ := ctx.Value(callerKey).(qbank.Caller)
	return caller
}
