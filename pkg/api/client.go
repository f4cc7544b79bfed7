// Package api is the HTTP client for the chat backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/duochat/duochat/pkg/attachment"
	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/logger"
)

const (
	pathSendMessage = "/api/send_message"
	pathGetMessages = "/api/get_messages"
	pathGetUsers    = "/api/get_users"
	pathAdminSend   = "/api/admin/send"

	headerSession = "X-Session-ID"
	headerRequest = "X-Request-ID"
)

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	SessionID string
	// HTTPClient replaces the transport client, e.g. in tests. Its cookie jar
	// carries the backend's own session cookie.
	HTTPClient *http.Client
}

// Client talks to the backend's message endpoints. It is safe for
// concurrent use.
type Client struct {
	rc      *resty.Client
	baseURL string
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api: base URL is required")
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	rc.SetBaseURL(baseURL)
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if opts.SessionID != "" {
		rc.SetHeader(headerSession, opts.SessionID)
	}
	rc.SetHeader("Accept", "application/json")

	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		r.SetHeader(headerRequest, uuid.NewString())
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.DebugCF("api", "Backend response", map[string]interface{}{
			"method":     resp.Request.Method,
			"url":        resp.Request.URL,
			"status":     resp.StatusCode(),
			"request_id": resp.Request.Header.Get(headerRequest),
			"elapsed_ms": resp.Time().Milliseconds(),
		})
		return nil
	})

	return &Client{rc: rc, baseURL: baseURL}, nil
}

// BaseURL is the backend origin without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// SendRequest is one outgoing message with its optional files.
type SendRequest struct {
	Channel chat.Channel
	Type    chat.MessageType
	Content string
	Files   []attachment.File
}

// SendResult is the decoded send response.
type SendResult struct {
	Status     string
	AIResponse string
	Message    string
	UserID     int64
}

func (r SendResult) OK() bool { return r.Status == "success" }

// GetMessages fetches the full, chronological message list for ch.
func (c *Client) GetMessages(ctx context.Context, ch chat.Channel) ([]chat.Message, error) {
	return c.getMessages(ctx, "get messages", map[string]string{"chat_type": string(ch)})
}

// UserMessages fetches the support conversation of one user, as an operator.
func (c *Client) UserMessages(ctx context.Context, userID int64) ([]chat.Message, error) {
	return c.getMessages(ctx, "get user messages", map[string]string{
		"chat_type": string(chat.ChannelSupport),
		"user_id":   strconv.FormatInt(userID, 10),
	})
}

func (c *Client) getMessages(ctx context.Context, op string, query map[string]string) ([]chat.Message, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(pathGetMessages)
	if err := checkResponse(op, resp, err); err != nil {
		return nil, err
	}

	var body struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, decodeError(op, err)
	}
	if body.Messages == nil {
		body.Messages = []chat.Message{}
	}
	return body.Messages, nil
}

// SendMessage posts one multipart message.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (SendResult, error) {
	form := map[string]string{
		"message_type": string(messageType(req)),
		"content":      req.Content,
		"chat_type":    string(req.Channel),
	}
	return c.postMultipart(ctx, "send message", pathSendMessage, form, req.Files)
}

// AdminSend posts a support reply to userID, as an operator.
func (c *Client) AdminSend(ctx context.Context, userID int64, req SendRequest) (SendResult, error) {
	form := map[string]string{
		"user_id":      strconv.FormatInt(userID, 10),
		"message_type": string(messageType(req)),
		"content":      req.Content,
	}
	return c.postMultipart(ctx, "admin send", pathAdminSend, form, req.Files)
}

// ListUsers returns every user known to the backend, most recent first.
func (c *Client) ListUsers(ctx context.Context) ([]chat.User, error) {
	const op = "list users"
	resp, err := c.rc.R().SetContext(ctx).Get(pathGetUsers)
	if err := checkResponse(op, resp, err); err != nil {
		return nil, err
	}

	var body struct {
		Users []chat.User `json:"users"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, decodeError(op, err)
	}
	return body.Users, nil
}

func (c *Client) postMultipart(ctx context.Context, op, path string, form map[string]string, files []attachment.File) (SendResult, error) {
	r := c.rc.R().
		SetContext(ctx).
		SetMultipartFormData(form)
	for _, f := range files {
		r.SetMultipartFields(&resty.MultipartField{
			Param:       "file",
			FileName:    f.Name,
			ContentType: f.MIME,
			Reader:      bytes.NewReader(f.Data),
		})
	}

	resp, err := r.Post(path)
	if err := checkResponse(op, resp, err); err != nil {
		return SendResult{}, err
	}
	return decodeSendResult(op, resp.Body())
}

func decodeSendResult(op string, body []byte) (SendResult, error) {
	if !gjson.ValidBytes(body) {
		return SendResult{}, decodeError(op, errors.New("invalid JSON"))
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return SendResult{}, decodeError(op, errors.New("expected a JSON object"))
	}
	return SendResult{
		Status:     doc.Get("status").String(),
		AIResponse: doc.Get("ai_response").String(),
		Message:    doc.Get("message").String(),
		UserID:     doc.Get("user_id").Int(),
	}, nil
}

func messageType(req SendRequest) chat.MessageType {
	if req.Type != "" {
		return req.Type
	}
	if len(req.Files) > 0 {
		return attachment.GroupFor(req.Files...).Type
	}
	return chat.TypeText
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return transportError(op, 0, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return transportError(op, resp.StatusCode(), nil)
	}
	return nil
}
