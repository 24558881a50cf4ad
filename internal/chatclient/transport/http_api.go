package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	chatapp "social_chat_service/internal/chat/app"
	chat "social_chat_service/internal/chat/domain"
	errprocess "social_chat_service/pkg/err"
	"social_chat_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// DefaultTimeout per request when the context carries no earlier deadline
const DefaultTimeout = 10 * time.Second

// HTTPAPI ChatAPI over the chat service REST routes
type HTTPAPI struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewHTTPAPI 建立 HTTPAPI. token is sent as Bearer on every call
func NewHTTPAPI(baseURL, token string, timeout time.Duration) *HTTPAPI {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
}

func (c *HTTPAPI) ListInbox(ctx context.Context) ([]chat.InboxRow, error) {
	var rows []chat.InboxRow
	if err := c.do(ctx, fiber.MethodGet, "/conversations", nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPAPI) Resolve(ctx context.Context, userID string) (string, error) {
	var out chatapp.ResolveResponse
	if err := c.do(ctx, fiber.MethodPost, "/conversations", nil, chatapp.ResolveRequest{UserID: userID}, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

func (c *HTTPAPI) MarkRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, fiber.MethodPost, messagesPath(conversationID, "read"), nil, nil, nil)
}

func (c *HTTPAPI) FetchLatest(ctx context.Context, conversationID string) ([]chat.Message, error) {
	return c.listMessages(ctx, conversationID, nil)
}

func (c *HTTPAPI) FetchSince(ctx context.Context, conversationID string, cursor time.Time) ([]chat.Message, error) {
	return c.listMessages(ctx, conversationID, url.Values{"cursor": {cursor.UTC().Format(time.RFC3339Nano)}})
}

func (c *HTTPAPI) FetchBefore(ctx context.Context, conversationID string, before time.Time) ([]chat.Message, error) {
	return c.listMessages(ctx, conversationID, url.Values{"before": {before.UTC().Format(time.RFC3339Nano)}})
}

func (c *HTTPAPI) Send(ctx context.Context, conversationID, text, clientID string) (*chat.Message, error) {
	var msg chat.Message
	body := chatapp.SendRequest{Text: text, ClientID: clientID}
	if err := c.do(ctx, fiber.MethodPost, messagesPath(conversationID, "messages"), nil, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *HTTPAPI) listMessages(ctx context.Context, conversationID string, q url.Values) ([]chat.Message, error) {
	var msgs []chat.Message
	if err := c.do(ctx, fiber.MethodGet, messagesPath(conversationID, "messages"), q, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func messagesPath(conversationID, leaf string) string {
	return "/conversations/" + url.PathEscape(conversationID) + "/" + leaf
}

func (c *HTTPAPI) do(ctx context.Context, method, path string, q url.Values, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return errprocess.Network(method+" "+path, err)
	}

	var a *fiber.Agent
	if method == fiber.MethodPost {
		a = fiber.Post(c.baseURL + path)
	} else {
		a = fiber.Get(c.baseURL + path)
	}
	a.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	if len(q) > 0 {
		a.QueryString(q.Encode())
	}
	if body != nil {
		a.JSON(body)
	}
	a.Timeout(c.timeoutFor(ctx))

	status, raw, errs := a.Bytes()
	if len(errs) > 0 {
		logger.Log.Debug("chat api unreachable", zap.String("path", path), zap.Errors("errors", errs))
		return errprocess.Network(method+" "+path, errs[0])
	}
	if status >= fiber.StatusBadRequest {
		return decodeError(status, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errprocess.Internal("decode "+path, err)
	}
	return nil
}

func (c *HTTPAPI) timeoutFor(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < c.timeout {
			if left <= 0 {
				return time.Millisecond
			}
			return left
		}
	}
	return c.timeout
}

// decodeError server error body {"error","code"} -> AppError, status decides when the body has no code
func decodeError(status int, raw []byte) error {
	var body struct {
		Error string          `json:"error"`
		Code  errprocess.Code `json:"code"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Error == "" {
		body.Error = fiber.NewError(status).Message
	}
	if body.Code == "" {
		body.Code = codeForStatus(status)
	}
	return errprocess.New(body.Code, body.Error)
}

func codeForStatus(status int) errprocess.Code {
	switch status {
	case fiber.StatusBadRequest:
		return errprocess.CodeValidation
	case fiber.StatusUnauthorized:
		return errprocess.CodeUnauthenticated
	case fiber.StatusForbidden:
		return errprocess.CodeAuthorization
	case fiber.StatusNotFound:
		return errprocess.CodeNotFound
	case fiber.StatusBadGateway, fiber.StatusServiceUnavailable, fiber.StatusGatewayTimeout:
		return errprocess.CodeNetwork
	default:
		return errprocess.CodeInternal
	}
}
