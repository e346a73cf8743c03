package controller

import (
	"zero-entropy-be/internal/pkg/serverutils"
	"zero-entropy-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IMemoryController interface {
	RegisterRoutes(r fiber.Router, jwtMiddleware fiber.Handler)
	Stats(ctx *fiber.Ctx) error
	Clear(ctx *fiber.Ctx) error
}

type memoryController struct {
	service service.ISessionService
}

func NewMemoryController(service service.ISessionService) IMemoryController {
	return &memoryController{service: service}
}

func (c *memoryController) RegisterRoutes(r fiber.Router, jwtMiddleware fiber.Handler) {
	h := r.Group("/memory/v1")
	h.Get("stats", c.Stats)
	h.Delete("clear", jwtMiddleware, c.Clear)
}

func (c *memoryController) Stats(ctx *fiber.Ctx) error {
	res, err := c.service.Stats(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success memory stats", res))
}

// Clear closes every live session of this instance.
func (c *memoryController) Clear(ctx *fiber.Ctx) error {
	if err := c.service.Clear(ctx.UserContext()); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success clear memory", nil))
}
