package controller

import (
	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/serverutils"
	"zero-entropy-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IKnowledgeController interface {
	RegisterRoutes(r fiber.Router, jwtMiddleware fiber.Handler)
	Add(ctx *fiber.Ctx) error
	AddBatch(ctx *fiber.Ctx) error
	Search(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
	Analyze(ctx *fiber.Ctx) error
	Reset(ctx *fiber.Ctx) error
}

type knowledgeController struct {
	service service.IKnowledgeService
}

func NewKnowledgeController(service service.IKnowledgeService) IKnowledgeController {
	return &knowledgeController{service: service}
}

func (c *knowledgeController) RegisterRoutes(r fiber.Router, jwtMiddleware fiber.Handler) {
	h := r.Group("/knowledge/v1")

	// Public endpoints
	h.Post("search", c.Search)
	h.Post("analyze", c.Analyze)
	h.Get("stats", c.Stats)

	// Mutations need a token when JWT_SECRET is set
	h.Post("", jwtMiddleware, c.Add)
	h.Post("batch", jwtMiddleware, c.AddBatch)
	h.Delete("document/:id", jwtMiddleware, c.Delete)
	h.Post("reset", jwtMiddleware, c.Reset)
}

func (c *knowledgeController) Add(ctx *fiber.Ctx) error {
	var req dto.AddKnowledgeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Add(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if res.Queued {
		status = fiber.StatusAccepted
	}
	return ctx.Status(status).JSON(serverutils.SuccessResponse("Success add knowledge", res))
}

func (c *knowledgeController) AddBatch(ctx *fiber.Ctx) error {
	var req dto.AddKnowledgeBatchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.AddBatch(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success add knowledge batch", res))
}

func (c *knowledgeController) Search(ctx *fiber.Ctx) error {
	var req dto.SearchKnowledgeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Search(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success search knowledge", res))
}

func (c *knowledgeController) Delete(ctx *fiber.Ctx) error {
	res, err := c.service.Delete(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success delete knowledge", res))
}

func (c *knowledgeController) Stats(ctx *fiber.Ctx) error {
	res, err := c.service.Stats(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success knowledge stats", res))
}

func (c *knowledgeController) Analyze(ctx *fiber.Ctx) error {
	var req dto.AnalyzeTextRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Analyze(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success analyze text", res))
}

func (c *knowledgeController) Reset(ctx *fiber.Ctx) error {
	if err := c.service.Clear(ctx.UserContext()); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success reset knowledge", nil))
}
