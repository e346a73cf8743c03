package controller

import (
	"context"
	"time"

	"zero-entropy-be/internal/pkg/serverutils"
	"zero-entropy-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
}

type healthController struct {
	sessions service.ISessionService
	version  string
}

func NewHealthController(sessions service.ISessionService, version string) IHealthController {
	return &healthController{sessions: sessions, version: version}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)
}

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	VectorStore    string `json:"vector_store"`
	ActiveSessions int    `json:"active_sessions"`
}

// Health reports degraded instead of failing when the index does not answer.
func (c *healthController) Health(ctx *fiber.Ctx) error {
	reqCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "healthy", Version: c.version, VectorStore: "operational"}
	stats, err := c.sessions.Stats(reqCtx)
	if err != nil {
		res.Status = "degraded"
		res.VectorStore = "unavailable"
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(serverutils.BaseResponse[healthResponse]{
			Success: false,
			Code:    fiber.StatusServiceUnavailable,
			Message: err.Error(),
			Data:    res,
		})
	}
	res.ActiveSessions = stats.ActiveSessions
	return ctx.JSON(serverutils.SuccessResponse("OK", res))
}
