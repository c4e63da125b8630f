package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/auth"
	"github.com/krishkalaria12/snap-forge/models"
)

const (
	CookieName = "JWT"

	localUser = "user"
)

// AuthMiddleware accepts a bearer token or the JWT cookie. Every failure gets
// the same 401 so callers cannot tell which check failed.
func AuthMiddleware(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		var tokenStr string

		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			tokenStr = strings.TrimSpace(authHeader[7:])
		} else {
			tokenStr = c.Cookies(CookieName)
		}

		user, err := authService.Authenticate(c.UserContext(), tokenStr)
		if err != nil {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			if apperr.KindOf(err) == apperr.KindUnauthorized {
				return apperr.Unauthorized()
			}
			return err
		}

		c.Locals(localUser, user)
		return c.Next()
	}
}

// CurrentUser returns the user stored by AuthMiddleware.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals(localUser).(*models.User)
	if !ok || user == nil {
		return nil, apperr.Unauthorized()
	}
	return user, nil
}

func CheckUserLoggedIn(c *fiber.Ctx) (uint, error) {
	user, err := CurrentUser(c)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}
