package app

import (
	"fmt"
	"strconv"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/middlewares"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/token"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// MessageHandler HTTP endpoints used by the messaging client
type MessageHandler struct {
	uc             *MessagingUseCase
	issuer         string
	socketTokenTTL time.Duration
}

// NewMessageHandler create MessageHandler
func NewMessageHandler(uc *MessagingUseCase, issuer string, socketTokenTTL time.Duration) *MessageHandler {
	if socketTokenTTL <= 0 {
		socketTokenTTL = 15 * time.Minute
	}
	return &MessageHandler{uc: uc, issuer: issuer, socketTokenTTL: socketTokenTTL}
}

func caller(c *fiber.Ctx) (string, string) {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)
	userType, _ := c.Locals(middlewares.TokenUserType).(string)
	return userID, userType
}

func pagination(c *fiber.Ctx) (int, int) {
	// page_size 為 0 代表不分頁
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "0"))
	if page < 1 {
		page = 1
	}
	if pageSize < 0 {
		pageSize = 0
	}
	return page, pageSize
}

// SocketToken godoc
// @Summary Issue websocket token
// @Description Issues the short lived token used in the /ws handshake (?token=).
// @Tags Messaging
// @Produce json
// @Param Authorization header string false "Bearer portal session token"
// @Success 200 {object} map[string]string "token"
// @Failure 401 {object} string "Unauthorized"
// @Failure 500 {object} string "Internal Server Error"
// @Router /api/messages/token [get]
func (h *MessageHandler) SocketToken(c *fiber.Ctx) error {
	userID, userType := caller(c)
	// 沿用 session 的 userId / userType
	tokenStr, err := token.GenerateJWT(userID, userType, h.issuer, h.socketTokenTTL)
	if err != nil {
		logger.Log.Error("issue socket token failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to issue token"})
	}
	return c.JSON(fiber.Map{"token": tokenStr})
}

// Conversations godoc
// @Summary List conversations
// @Description Lists the caller's conversations, newest first.
// @Tags Messaging
// @Produce json
// @Param page query int false "Page, starts at 1"
// @Param page_size query int false "Page size, 0 for all"
// @Success 200 {object} map[string][]domain.Conversation "conversations"
// @Failure 401 {object} string "Unauthorized"
// @Failure 500 {object} string "Internal Server Error"
// @Router /api/messages/conversations [get]
func (h *MessageHandler) Conversations(c *fiber.Ctx) error {
	userID, _ := caller(c)
	page, pageSize := pagination(c)
	convs, err := h.uc.Conversations(c.UserContext(), userID, page, pageSize)
	if err != nil {
		logger.Log.Error("list conversations failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load conversations"})
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

// Messages godoc
// @Summary Get thread
// @Description Returns the messages exchanged with otherUserId, oldest first.
// @Tags Messaging
// @Produce json
// @Param otherUserId path string true "Other participant"
// @Param page query int false "Page, starts at 1"
// @Param page_size query int false "Page size, 0 for all"
// @Success 200 {object} map[string][]domain.Message "messages"
// @Failure 400 {object} string "Bad Request"
// @Failure 401 {object} string "Unauthorized"
// @Failure 500 {object} string "Internal Server Error"
// @Router /api/messages/{otherUserId} [get]
func (h *MessageHandler) Messages(c *fiber.Ctx) error {
	userID, _ := caller(c)
	page, pageSize := pagination(c)
	msgs, err := h.uc.Thread(c.UserContext(), userID, c.Params("otherUserId"), page, pageSize)
	if err != nil {
		if IsClientError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		logger.Log.Error("load thread failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load messages"})
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// MarkConversationRead godoc
// @Summary Mark conversation read
// @Description Resets the unread counter of the conversation with otherUserId.
// @Tags Messaging
// @Produce json
// @Param otherUserId path string true "Other participant"
// @Success 200 {object} map[string]bool "success"
// @Failure 400 {object} string "Bad Request"
// @Failure 401 {object} string "Unauthorized"
// @Failure 500 {object} string "Internal Server Error"
// @Router /api/messages/{otherUserId}/read [put]
func (h *MessageHandler) MarkConversationRead(c *fiber.Ctx) error {
	userID, _ := caller(c)
	if err := h.uc.MarkConversationRead(c.UserContext(), userID, c.Params("otherUserId")); err != nil {
		if IsClientError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		logger.Log.Error("mark conversation read failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to mark conversation as read"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// ConnectCheck godoc
// @Summary Health check
// @Tags Service
// @Produce plain
// @Success 200 {string} string "messaging service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("messaging service start!")
}

// DebugLogFlag godoc
// @Summary Toggle debug log
// @Tags Service
// @Produce plain
// @Param status query bool true "true or false"
// @Success 200 {string} string "debug mode is : true"
// @Failure 400 {object} string "Bad Request"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}
