package app

import (
	"strconv"

	errprocess "social_chat_service/pkg/err"
	"social_chat_service/pkg/logger"
	"social_chat_service/pkg/middlewares"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ResolveRequest POST /conversations body
type ResolveRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

// SendRequest POST /conversations/:id/messages body
type SendRequest struct {
	Text     string `json:"text" validate:"required,max=4000"`
	ClientID string `json:"clientId" validate:"omitempty,max=64"`
}

// ResolveResponse POST /conversations response
type ResolveResponse struct {
	ConversationID string `json:"conversationId"`
}

// ChatHandler 处理聊天相关的 HTTP 请求
type ChatHandler struct {
	convUC   ConversationUseCase
	msgUC    MessageUseCase
	validate *validator.Validate
}

// NewChatHandler 创建新的 ChatHandler
func NewChatHandler(convUC ConversationUseCase, msgUC MessageUseCase) *ChatHandler {
	return &ChatHandler{
		convUC:   convUC,
		msgUC:    msgUC,
		validate: validator.New(),
	}
}

// ListInbox 取得收件匣
// @Summary 取得收件匣
// @Tags Conversations
// @Produce json
// @Success 200 {array} domain.InboxRow
// @Router /conversations [get]
func (h *ChatHandler) ListInbox(c *fiber.Ctx) error {
	caller, ok := middlewares.MemberID(c)
	if !ok {
		return writeError(c, errprocess.Unauthenticated("missing caller"))
	}

	rows, err := h.convUC.Inbox(c.UserContext(), caller)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(rows)
}

// ResolveConversation 建立或取得與對方的對話
// @Summary 建立或取得對話
// @Tags Conversations
// @Accept json
// @Produce json
// @Param request body ResolveRequest true "對方 member id"
// @Success 200 {object} ResolveResponse
// @Failure 400 {object} string "请求错误"
// @Router /conversations [post]
func (h *ChatHandler) ResolveConversation(c *fiber.Ctx) error {
	caller, ok := middlewares.MemberID(c)
	if !ok {
		return writeError(c, errprocess.Unauthenticated("missing caller"))
	}

	var req ResolveRequest
	if err := h.parse(c, &req); err != nil {
		return writeError(c, err)
	}

	id, err := h.convUC.Resolve(c.UserContext(), caller, req.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ResolveResponse{ConversationID: id})
}

// MarkRead 已讀
// @Summary 將對話標記為已讀
// @Tags Conversations
// @Param id path string true "conversation id"
// @Success 200 {object} string "ok"
// @Router /conversations/{id}/read [post]
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	caller, ok := middlewares.MemberID(c)
	if !ok {
		return writeError(c, errprocess.Unauthenticated("missing caller"))
	}

	if err := h.convUC.MarkRead(c.UserContext(), caller, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// ListMessages 分頁取得訊息, cursor 與 before 擇一
// @Summary 取得訊息
// @Tags Messages
// @Produce json
// @Param id path string true "conversation id"
// @Param cursor query string false "RFC3339, 取得更新的訊息"
// @Param before query string false "RFC3339, 取得更舊的訊息"
// @Success 200 {array} domain.Message
// @Router /conversations/{id}/messages [get]
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	caller, ok := middlewares.MemberID(c)
	if !ok {
		return writeError(c, errprocess.Unauthenticated("missing caller"))
	}

	q, err := ParseMessageQuery(c.Query("cursor"), c.Query("before"))
	if err != nil {
		return writeError(c, err)
	}

	msgs, err := h.msgUC.List(c.UserContext(), caller, c.Params("id"), q)
	if err != nil {
		return writeError(c, err)
	}
	logger.Log.Debug("list messages",
		zap.String("conversation_id", c.Params("id")),
		zap.String("mode", q.Mode.String()),
		zap.Int("count", len(msgs)),
	)
	return c.JSON(msgs)
}

// SendMessage 發送訊息
// @Summary 發送訊息
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "conversation id"
// @Param request body SendRequest true "訊息"
// @Success 200 {object} domain.Message
// @Router /conversations/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	caller, ok := middlewares.MemberID(c)
	if !ok {
		return writeError(c, errprocess.Unauthenticated("missing caller"))
	}

	var req SendRequest
	if err := h.parse(c, &req); err != nil {
		return writeError(c, err)
	}

	msg, err := h.msgUC.Send(c.UserContext(), caller, c.Params("id"), req.Text, req.ClientID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(msg)
}

// ConnectCheck 健康檢查
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service is running")
}

// DebugLogFlag 切換 debug log, POST /debug?status=true
func DebugLogFlag(c *fiber.Ctx) error {
	status, err := strconv.ParseBool(c.Query("status"))
	if err != nil {
		return writeError(c, errprocess.Validation("status must be true or false"))
	}
	logger.Log.SetDebugMode(status)
	return c.JSON(fiber.Map{"debug": status})
}

func (h *ChatHandler) parse(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errprocess.Validation("invalid request body")
	}
	if err := h.validate.Struct(out); err != nil {
		return errprocess.Wrap(errprocess.CodeValidation, "invalid request", err)
	}
	return nil
}

// writeError AppError code -> http status
func writeError(c *fiber.Ctx, err error) error {
	code := errprocess.CodeOf(err)
	status := statusOf(code)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("chat request failed",
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.Error(err),
		)
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}

func statusOf(code errprocess.Code) int {
	switch code {
	case errprocess.CodeValidation:
		return fiber.StatusBadRequest
	case errprocess.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case errprocess.CodeAuthorization:
		return fiber.StatusForbidden
	case errprocess.CodeNotFound:
		return fiber.StatusNotFound
	case errprocess.CodeNetwork:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
