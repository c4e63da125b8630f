package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/krishkalaria12/snap-forge/auth"
	"github.com/krishkalaria12/snap-forge/middleware"
	"github.com/krishkalaria12/snap-forge/models"
)

type UserResponse struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"name"`
	Role      string `json:"role"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Role:      u.Role,
	}
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var input auth.RegisterInput
	if err := h.bind(c, &input); err != nil {
		return err
	}

	user, err := h.auth.Register(c.UserContext(), input)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "User created successfully", toUserResponse(user))
}

func (h *Handler) Login(c *fiber.Ctx) error {
	type LoginData struct {
		Email    string `json:"email" form:"username" validate:"required,email"`
		Password string `json:"password" form:"password" validate:"required"`
	}
	type LoginResponse struct {
		User        UserResponse `json:"user"`
		AccessToken string       `json:"access_token"`
		TokenType   string       `json:"token_type"`
	}

	var input LoginData
	if err := h.bind(c, &input); err != nil {
		return err
	}

	user, tokenStr, err := h.auth.Login(c.UserContext(), input.Email, input.Password)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    tokenStr,
		Expires:  time.Now().Add(h.auth.Tokens().TTL()),
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: "Lax",
	})

	return success(c, fiber.StatusOK, "Login successful", LoginResponse{
		User:        toUserResponse(user),
		AccessToken: tokenStr,
		TokenType:   "bearer",
	})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: "Lax",
	})
	return success(c, fiber.StatusOK, "Logout successful", nil)
}

func (h *Handler) GetCurrentUser(c *fiber.Ctx) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "User found", toUserResponse(user))
}
