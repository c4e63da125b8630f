package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/history"
	"github.com/krishkalaria12/snap-forge/middleware"
	"github.com/krishkalaria12/snap-forge/models"
)

// History responses are returned without the envelope; clients page through
// them directly.

func (h *Handler) ListHistory(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}

	role := models.AssetRole(c.Query("role", string(models.RoleGenerated)))
	page, err := h.history.List(c.UserContext(), userID, role, c.QueryInt("page", 1), c.QueryInt("size", history.DefaultPageSize))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *Handler) GetHistoryItem(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}
	id, err := assetID(c)
	if err != nil {
		return err
	}

	item, err := h.history.Get(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(item)
}

// DownloadHistoryItem redirects to a short-lived signed URL for the object.
func (h *Handler) DownloadHistoryItem(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}
	id, err := assetID(c)
	if err != nil {
		return err
	}

	item, err := h.history.Get(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	url, err := h.blobs.SignedURL(c.UserContext(), item.StorageKey, h.signedURLTTL)
	if err != nil {
		return err
	}
	return c.Redirect(url, fiber.StatusTemporaryRedirect)
}

func (h *Handler) DeleteHistoryItem(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}
	id, err := assetID(c)
	if err != nil {
		return err
	}

	res, err := h.lineage.DeleteGenerated(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":              true,
		"deleted_source_count": res.DeletedSourceCount,
	})
}

func assetID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid asset id %q", c.Params("id"))
	}
	return uint(id), nil
}
