package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/krishkalaria12/snap-forge/jobs"
	"github.com/krishkalaria12/snap-forge/middleware"
	"github.com/krishkalaria12/snap-forge/providers"
)

type VideoParams struct {
	Prompt         string   `form:"prompt" validate:"required,max=2500"`
	Duration       string   `form:"duration" validate:"omitempty,oneof=5 10 5s 10s"`
	AspectRatio    string   `form:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16 1:1"`
	NegativePrompt string   `form:"negative_prompt" validate:"omitempty,max=2500"`
	CFGScale       *float64 `form:"cfg_scale" validate:"omitempty,min=0,max=1"`
}

// StartVideo accepts the request and returns the job id right away; the
// client polls VideoStatus for the result.
func (h *Handler) StartVideo(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}

	var params VideoParams
	if err := h.bind(c, &params); err != nil {
		return err
	}
	img, err := formUpload(c, "image")
	if err != nil {
		return err
	}

	job, err := h.gen.StartVideo(c.UserContext(), userID, img, providers.VideoRequest{
		Prompt:         params.Prompt,
		Duration:       params.Duration,
		AspectRatio:    params.AspectRatio,
		NegativePrompt: params.NegativePrompt,
		CFGScale:       params.CFGScale,
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusAccepted, "Video generation started", job)
}

func (h *Handler) VideoStatus(c *fiber.Ctx) error {
	userID, err := middleware.CheckUserLoggedIn(c)
	if err != nil {
		return err
	}

	job, err := jobs.GetOwned(c.UserContext(), h.jobs, userID, c.Params("id"))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Job status fetched", job)
}
