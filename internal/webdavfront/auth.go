package webdavfront

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
)

// nonceTTL bounds how long an issued Digest nonce stays usable; a
// request arriving with an older nonce is answered 401 stale=true.
const nonceTTL = 30 * time.Minute

// Credentials is the static username -> password table front-end auth
// validates against.
type Credentials map[string]string

type nonceEntry struct {
	issuedAt time.Time
}

// nonceTable tracks the Digest nonces issued by one front-end instance.
// Expired entries are dropped on access and by the periodic sweep.
type nonceTable struct {
	mu     sync.Mutex
	nonces map[string]nonceEntry
	lastGC time.Time
}

func newNonceTable() *nonceTable {
	return &nonceTable{nonces: map[string]nonceEntry{}}
}

func (t *nonceTable) issue() string {
	sum := sha256.Sum256([]byte(xid.New().String() + time.Now().Format(time.RFC3339Nano)))
	nonce := hex.EncodeToString(sum[:])[:32]

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked()
	t.nonces[nonce] = nonceEntry{issuedAt: time.Now()}
	return nonce
}

// check reports whether nonce is known and fresh. A known-but-expired
// nonce reports stale=true so the client can retry with a new one
// without reprompting the user.
func (t *nonceTable) check(nonce string) (valid, stale bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.nonces[nonce]
	if !ok {
		return false, false
	}
	if time.Since(entry.issuedAt) > nonceTTL {
		delete(t.nonces, nonce)
		return false, true
	}
	return true, false
}

func (t *nonceTable) sweepLocked() {
	if time.Since(t.lastGC) < time.Minute {
		return
	}
	t.lastGC = time.Now()
	for nonce, entry := range t.nonces {
		if time.Since(entry.issuedAt) > nonceTTL {
			delete(t.nonces, nonce)
		}
	}
}

// Authenticator guards a handler with Basic or Digest credentials.
type Authenticator struct {
	realm       string
	scheme      string
	credentials Credentials
	nonces      *nonceTable
}

// NewAuthenticator validates against credentials using scheme ("basic"
// or "digest"). A nil/empty credentials table disables authentication.
func NewAuthenticator(realm, scheme string, credentials Credentials) *Authenticator {
	if realm == "" {
		realm = "govfs"
	}
	return &Authenticator{
		realm:       realm,
		scheme:      scheme,
		credentials: credentials,
		nonces:      newNonceTable(),
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if len(a.credentials) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		switch a.scheme {
		case "digest":
			var stale bool
			ok, stale = a.checkDigest(r)
			if !ok {
				a.challengeDigest(w, stale)
				return
			}
		default:
			ok = a.checkBasic(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", a.realm))
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) checkBasic(r *http.Request) bool {
	username, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	expected, ok := a.credentials[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(expected)) == 1
}

func (a *Authenticator) challengeDigest(w http.ResponseWriter, stale bool) {
	challenge := fmt.Sprintf("Digest realm=%q, qop=\"auth\", nonce=%q, algorithm=MD5", a.realm, a.nonces.issue())
	if stale {
		challenge += ", stale=true"
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// checkDigest verifies an RFC 7616 MD5/qop=auth authorization header
// against the nonce table and the credential store.
func (a *Authenticator) checkDigest(r *http.Request) (ok, stale bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Digest ") {
		return false, false
	}

	params := parseAuthParams(header[len("Digest "):])

	username := params["username"]
	password, known := a.credentials[username]
	if !known {
		return false, false
	}

	valid, stale := a.nonces.check(params["nonce"])
	if !valid {
		return false, stale
	}

	ha1 := md5hex(fmt.Sprintf("%s:%s:%s", username, a.realm, password))
	ha2 := md5hex(fmt.Sprintf("%s:%s", r.Method, params["uri"]))

	var expected string
	if params["qop"] == "" {
		expected = md5hex(fmt.Sprintf("%s:%s:%s", ha1, params["nonce"], ha2))
	} else {
		expected = md5hex(fmt.Sprintf("%s:%s:%s:%s:%s:%s",
			ha1, params["nonce"], params["nc"], params["cnonce"], params["qop"], ha2))
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(params["response"])) == 1, false
}

func md5hex(data string) string {
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

// parseAuthParams splits a comma-separated auth parameter list,
// honoring quoted values.
func parseAuthParams(raw string) map[string]string {
	params := map[string]string{}

	var parts []string
	var current strings.Builder
	inQuotes := false
	for _, r := range raw {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	parts = append(parts, current.String())

	for _, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		params[strings.TrimSpace(key)] = value
	}
	return params
}
