package apiclient

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBackend mimics the finance API: login issues T1/R1, refresh turns R1
// into T2, and protected endpoints accept only the current access token.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	refreshCalls atomic.Int32
	refreshFails bool
	refreshDelay time.Duration
	rotateCookie string

	mu          sync.Mutex
	validToken  string
	authHeaders []string
	refreshSeen []string

	// hold delays the first 401 answers until that many protected requests
	// have arrived, so they all carry the same stale token.
	hold     int
	arrived  int
	released chan struct{}
}

// newFakeBackend applies opts before the server starts so handlers never
// race with test setup.
func newFakeBackend(t *testing.T, opts ...func(*fakeBackend)) *fakeBackend {
	b := &fakeBackend{t: t, validToken: "T2", released: make(chan struct{})}
	for _, opt := range opts {
		opt(b)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", b.login)
	mux.HandleFunc("POST /api/auth/refresh-token", b.refresh)
	mux.HandleFunc("GET /api/categories", b.protected(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Food", "type": "EXPENSE", "color": "#f00"}})
	}))
	mux.HandleFunc("GET /api/always401", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "nope"})
	})
	mux.HandleFunc("GET /api/transactions/404", b.protected(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Transaction not found"})
	}))
	mux.HandleFunc("GET /api/raw", b.protected(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"value": 3})
	}))
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
}

func (b *fakeBackend) headers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders...)
}

func (b *fakeBackend) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		b.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+b.validToken
		waiting := false
		if !ok && b.hold > 0 && b.arrived < b.hold {
			b.arrived++
			waiting = true
			if b.arrived == b.hold {
				close(b.released)
			}
		}
		b.mu.Unlock()

		if !ok {
			if waiting {
				select {
				case <-b.released:
				case <-time.After(5 * time.Second):
					b.t.Error("requests never all arrived")
				}
			}
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Full authentication is required"})
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password string }
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Password != "pw" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid email or password"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "R1", Path: "/", HttpOnly: true})
	writeEnvelope(w, http.StatusOK, map[string]any{
		"accessToken": "T1",
		"type":        "Bearer",
		"userId":      1,
		"email":       req.Email,
		"fullName":    "A B",
	})
}

func (b *fakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	if b.refreshDelay > 0 {
		time.Sleep(b.refreshDelay)
	}

	presented := ""
	if c, err := r.Cookie("refreshToken"); err == nil {
		presented = c.Value
	} else if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if json.Unmarshal(data, &body) == nil {
			presented = body.RefreshToken
		}
	}
	b.mu.Lock()
	b.refreshSeen = append(b.refreshSeen, presented)
	b.mu.Unlock()

	if b.refreshFails || presented != "R1" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid refresh token"})
		return
	}
	if r.Header.Get("Authorization") != "" {
		b.t.Error("refresh must not carry a bearer token")
	}
	if b.rotateCookie != "" {
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: b.rotateCookie, Path: "/"})
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"accessToken": "T2"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success":   true,
		"message":   "ok",
		"data":      data,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
