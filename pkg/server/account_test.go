package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quizarena/quizarena/pkg/token"
)

func postJSON(t *testing.T, handler http.Handler, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var parsed map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
	return rec, parsed
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _ := newTestServer(t, shortConfig())
	handler := srv.Handler()

	rec, resp := postJSON(t, handler, "/api/register", map[string]string{
		"username": "alice", "password": "hunter22", "avatar": "avatars/alice.png",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp["status"] != "success" || resp["token"] == "" {
		t.Fatalf("register response = %v", resp)
	}

	// The issued token verifies against the server secret.
	ident, err := token.NewVerifier([]byte(srv.cfg.TokenSecret)).Verify(resp["token"].(string))
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if ident.Username != "alice" {
		t.Errorf("token username = %q, want alice", ident.Username)
	}

	rec, resp = postJSON(t, handler, "/api/login", map[string]string{
		"username": "alice", "password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp["token"] == "" {
		t.Errorf("login returned no token")
	}

	if srv.metrics.UsersRegistered.Load() != 1 {
		t.Errorf("users registered = %d, want 1", srv.metrics.UsersRegistered.Load())
	}
}

func TestRegisterConflict(t *testing.T) {
	srv, _ := newTestServer(t, shortConfig())
	handler := srv.Handler()

	creds := map[string]string{"username": "bob", "password": "hunter22"}
	if rec, _ := postJSON(t, handler, "/api/register", creds); rec.Code != http.StatusOK {
		t.Fatalf("first register status = %d", rec.Code)
	}
	rec, resp := postJSON(t, handler, "/api/register", creds)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}
	if resp["status"] != "error" {
		t.Errorf("duplicate register response = %v", resp)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv, _ := newTestServer(t, shortConfig())
	handler := srv.Handler()

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing password", map[string]string{"username": "carol"}},
		{"missing username", map[string]string{"password": "hunter22"}},
		{"bad username", map[string]string{"username": "has space", "password": "hunter22"}},
		{"short password", map[string]string{"username": "carol", "password": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := postJSON(t, handler, "/api/register", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestLoginRejections(t *testing.T) {
	srv, _ := newTestServer(t, shortConfig())
	handler := srv.Handler()

	if rec, _ := postJSON(t, handler, "/api/register", map[string]string{
		"username": "dave", "password": "hunter22",
	}); rec.Code != http.StatusOK {
		t.Fatalf("register status = %d", rec.Code)
	}

	// Wrong password and unknown user produce the same answer.
	for _, creds := range []map[string]string{
		{"username": "dave", "password": "wrong"},
		{"username": "nobody", "password": "hunter22"},
	} {
		rec, resp := postJSON(t, handler, "/api/login", creds)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("login %v status = %d, want 401", creds, rec.Code)
		}
		if resp["message"] != "invalid credentials" {
			t.Errorf("login %v message = %v, want invalid credentials", creds, resp["message"])
		}
	}
}

func TestAccountCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, shortConfig())
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS allow-origin header")
	}
}

func TestAccountMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, shortConfig())
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/register", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET register status = %d, want 405", rec.Code)
	}
}
