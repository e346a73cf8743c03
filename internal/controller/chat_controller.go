package controller

import (
	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/serverutils"
	"zero-entropy-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService    service.IChatService
	sessionService service.ISessionService
}

func NewChatController(chatService service.IChatService, sessionService service.ISessionService) IChatController {
	return &chatController{
		chatService:    chatService,
		sessionService: sessionService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Post("", c.Chat)
	h.Get("history/:sessionId", c.History)
}

// Chat runs one conversational turn and returns the reply with its sources.
func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Chat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success chat", res))
}

func (c *chatController) History(ctx *fiber.Ctx) error {
	res, err := c.sessionService.Show(ctx.UserContext(), ctx.Params("sessionId"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show history", res))
}
