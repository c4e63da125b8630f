package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/auth"
	"github.com/krishkalaria12/snap-forge/generation"
	"github.com/krishkalaria12/snap-forge/history"
	"github.com/krishkalaria12/snap-forge/jobs"
	"github.com/krishkalaria12/snap-forge/lineage"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/storage"
)

type Handler struct {
	auth     *auth.Service
	gen      *generation.Service
	history  *history.Service
	lineage  *lineage.Engine
	blobs    storage.BlobStore
	jobs     jobs.Store
	validate *validator.Validate
	log      *logger.Logger

	signedURLTTL  time.Duration
	secureCookies bool
}

type Deps struct {
	Auth          *auth.Service
	Generation    *generation.Service
	History       *history.Service
	Lineage       *lineage.Engine
	Blobs         storage.BlobStore
	Jobs          jobs.Store
	Log           *logger.Logger
	SignedURLTTL  time.Duration
	SecureCookies bool
}

func New(d Deps) *Handler {
	ttl := d.SignedURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Handler{
		auth:          d.Auth,
		gen:           d.Generation,
		history:       d.History,
		lineage:       d.Lineage,
		blobs:         d.Blobs,
		jobs:          d.Jobs,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           d.Log.With("component", "http"),
		signedURLTTL:  ttl,
		secureCookies: d.SecureCookies,
	}
}

func success(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

// ErrorHandler renders every error returned by a handler in the response
// envelope. Internal errors are logged and replaced by a generic message.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperr.HTTPStatus(err)
		message := apperr.PublicMessage(err)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status, message = fe.Code, fe.Message
		}

		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"request_id", c.Locals("requestid"),
				"kind", apperr.KindOf(err),
				"error", err)
		}
		return c.Status(status).JSON(fiber.Map{
			"status":  "error",
			"message": message,
			"data":    nil,
		})
	}
}

// bind parses the body (JSON or form) into out and validates it.
func (h *Handler) bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return h.check(out)
}

func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("Invalid request body")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (h *Handler) Auth() *auth.Service { return h.auth }
