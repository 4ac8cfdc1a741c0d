package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"design-studio/internal/studio/models"
	"design-studio/internal/studio/repository"
	"design-studio/internal/studio/service"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// ============================================================
// Auth Handler
// ============================================================

type UserStore interface {
	GetByCredentials(ctx context.Context, login, password string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type AuthHandler struct {
	users    UserStore
	sessions *service.SessionManager
	log      zerolog.Logger
}

func NewAuthHandler(users UserStore, sessions *service.SessionManager, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, log: logger}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login выдает токен по паре login/password.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "empty body"})
	}

	var req loginRequest
	if err := sonic.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.Login == "" || req.Password == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "login and password required"})
	}

	user, err := h.users.GetByCredentials(c.Context(), req.Login, req.Password)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.log.Error().Err(err).Msg("login lookup")
		}
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}

	h.log.Info().Str("user", user.ID).Msg("login")
	return c.JSON(loginResponse{Token: h.sessions.Issue(user.ID), User: user})
}

// Logout отзывает токен из заголовка Authorization.
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	token, ok := bearer(c)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	h.sessions.Revoke(token)
	return c.SendStatus(http.StatusNoContent)
}

// GetUser возвращает данные пользователя.
func (h *AuthHandler) GetUser(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	user, err := h.users.GetByID(c.Context(), userID)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	return c.JSON(user)
}

// ============================================================
// Helpers
// ============================================================

func bearer(c fiber.Ctx) (string, bool) {
	auth := c.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

// authorize пропускает только владельца ресурса /users/:id.
func authorize(c fiber.Ctx, sessions *service.SessionManager) (string, error) {
	token, ok := bearer(c)
	if !ok {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	userID, ok := sessions.Resolve(token)
	if !ok {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	targetID := c.Params("id")
	if targetID == "" || targetID != userID {
		return "", fiber.NewError(http.StatusForbidden, "forbidden")
	}
	return userID, nil
}
