package handler

import (
	"context"
	"encoding/json"

	"zero-entropy-be/internal/dto"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/internal/pkg/serverutils"
	"zero-entropy-be/internal/service"
	internalWS "zero-entropy-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

const chatWsModule = "CHAT_WS"

type ChatWsHandler struct {
	chat      service.IChatService
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewChatWsHandler(chat service.IChatService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *ChatWsHandler {
	return &ChatWsHandler{
		chat:      chat,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (h *ChatWsHandler) RegisterRoutes(r fiber.Router) {
	r.Use("/ws", h.Upgrade)
	r.Get("/ws/chat/:sessionId", websocket.New(h.serve))
}

// Upgrade rejects non-websocket requests and, when a secret is configured,
// requests without a valid token. Browsers cannot set headers on the
// handshake, so the token may come as a query parameter.
func (h *ChatWsHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if h.jwtSecret == "" {
		return c.Next()
	}

	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(h.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		h.logger.Warn(chatWsModule, "Invalid token in websocket handshake", map[string]interface{}{"error": err})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}
	return c.Next()
}

func (h *ChatWsHandler) serve(conn *websocket.Conn) {
	sessionId := conn.Params("sessionId")
	h.logger.Info(chatWsModule, "Websocket connected", map[string]interface{}{"session_id": sessionId})
	internalWS.ServeWs(context.Background(), h.hub, conn, sessionId, h.handleMessage)
	h.logger.Info(chatWsModule, "Websocket disconnected", map[string]interface{}{"session_id": sessionId})
}

type wsChatMessage struct {
	Message string `json:"message"`
	UseRag  *bool  `json:"use_rag,omitempty"`
}

// handleMessage runs one turn. The reply reaches this and every other
// listener of the session through the hub; errors go to the sender only.
func (h *ChatWsHandler) handleMessage(ctx context.Context, client *internalWS.Client, payload []byte) {
	var in wsChatMessage
	if err := json.Unmarshal(payload, &in); err != nil {
		h.hub.SendTo(client, "error", serverutils.ErrorResponse(fiber.StatusBadRequest, "Invalid message"))
		return
	}
	if in.Message == "" {
		return
	}

	req := &dto.ChatRequest{SessionId: client.SessionId, Message: in.Message, UseRag: in.UseRag}
	if err := serverutils.ValidateRequest(req); err != nil {
		h.hub.SendTo(client, "error", serverutils.ErrorResponse(fiber.StatusBadRequest, err.Error()))
		return
	}

	if _, err := h.chat.Chat(ctx, req); err != nil {
		code := serverutils.StatusFor(err)
		h.logger.Warn(chatWsModule, "Chat turn failed", map[string]interface{}{
			"session_id": client.SessionId,
			"status":     code,
			"error":      err.Error(),
		})
		h.hub.SendTo(client, "error", serverutils.ErrorResponse(code, err.Error()))
	}
}
