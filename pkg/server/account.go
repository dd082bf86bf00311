package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quizarena/quizarena/pkg/crypto"
	"github.com/quizarena/quizarena/pkg/model"
	"github.com/quizarena/quizarena/pkg/store"
)

// MinPasswordLength is the minimum accepted password length at registration.
const MinPasswordLength = 6

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

type authResponse struct {
	Status   string `json:"status"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// withCORS wraps an account handler with the permissive CORS policy the
// browser client needs, answering preflight requests directly.
func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// handleRegister creates an account and returns a fresh token so the
// client can connect immediately.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}
	if err := model.ValidateUsername(req.Username); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: err.Error()})
		return
	}
	if len(req.Password) < MinPasswordLength {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "password too short"})
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		slog.Error("password hash failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "internal error"})
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Username, hash, req.Avatar)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			writeJSON(w, http.StatusConflict, errorResponse{Status: "error", Message: "username already taken"})
			return
		}
		slog.Error("user create failed", "username", req.Username, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "internal error"})
		return
	}

	s.metrics.UsersRegistered.Add(1)
	slog.Info("user registered", "user", user.Username, "id", user.ID)
	s.issueAuthResponse(w, user)
}

// handleLogin verifies credentials and returns a fresh token. Unknown
// username and wrong password produce the same reply.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("user lookup failed", "username", req.Username, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "internal error"})
		return
	}
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Status: "error", Message: "invalid credentials"})
		return
	}

	match, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Status: "error", Message: "invalid credentials"})
		return
	}

	slog.Info("user logged in", "user", user.Username, "id", user.ID)
	s.issueAuthResponse(w, user)
}

func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (*credentialsRequest, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Status: "error", Message: "method not allowed"})
		return nil, false
	}
	req := &credentialsRequest{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid request body"})
		return nil, false
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "username and password are required"})
		return nil, false
	}
	return req, true
}

func (s *Server) issueAuthResponse(w http.ResponseWriter, user *model.User) {
	signed, err := s.verifier.Issue(user, s.cfg.TokenTTL)
	if err != nil {
		slog.Error("token issue failed", "user", user.Username, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Status:   "success",
		Token:    signed,
		Username: user.Username,
		Avatar:   user.Avatar,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "err", err)
	}
}
