package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/rps/internal/auth"
	"github.com/jason-s-yu/rps/internal/database"
	"github.com/jason-s-yu/rps/internal/models"
	"github.com/sirupsen/logrus"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// CreateUserHandler registers an account.
//
// Request payload:
//
//	{"email": "someone@example.com", "password": "password", "username": "someone"}
func CreateUserHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			http.Error(w, "email and password are required", http.StatusBadRequest)
			return
		}
		if req.Username == "" {
			req.Username = strings.SplitN(req.Email, "@", 2)[0]
		}

		user := models.User{Email: req.Email, Password: req.Password, Username: req.Username}
		if err := database.CreateUser(r.Context(), &user); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "email already exists", http.StatusConflict)
				return
			}
			logger.WithError(err).Error("failed to create user")
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(user)
	}
}

// LoginHandler exchanges credentials for a participant token, returned both
// in the body and as the auth cookie.
//
// Response payload:
//
//	{"token": "{jwt}"}
func LoginHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		token, err := database.AuthenticateUser(r.Context(), req.Email, req.Password)
		if errors.Is(err, database.ErrInvalidCredentials) {
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}
		if err != nil {
			logger.WithError(err).Error("login failed")
			http.Error(w, "authentication failed", http.StatusInternalServerError)
			return
		}

		auth.SetCookie(w, token)
		writeJSON(w, http.StatusOK, loginResponse{Token: token})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
