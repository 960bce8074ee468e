// Package mailbox is the HTTP client devices use against the message
// server: send, pull, acknowledge.
package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-gruen/nexus/internal/errors"
	"github.com/m-gruen/nexus/internal/models"

	"github.com/sirupsen/logrus"
)

type Client interface {
	Send(ctx context.Context, receiverID int64, content, nonce string) (*models.Message, error)
	Fetch(ctx context.Context, peerID int64) ([]models.Message, error)
	Acknowledge(ctx context.Context, messageIDs []int64) (int64, error)
}

type HTTPClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    *logrus.Logger
}

func NewClient(baseURL, authToken string, httpClient *http.Client) Client {
	return NewClientWithLogger(baseURL, authToken, httpClient, nil)
}

func NewClientWithLogger(baseURL, authToken string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &HTTPClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authToken: authToken,
		client:    httpClient,
		logger:    logger,
	}
}

func (c *HTTPClient) Send(ctx context.Context, receiverID int64, content, nonce string) (*models.Message, error) {
	body := SendRequest{ReceiverID: receiverID, Content: content, Nonce: nonce}

	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/api/v1/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *HTTPClient) Fetch(ctx context.Context, peerID int64) ([]models.Message, error) {
	path := "/api/v1/messages?peer=" + url.QueryEscape(strconv.FormatInt(peerID, 10))

	var resp FetchResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		resp.Messages = []models.Message{}
	}
	return resp.Messages, nil
}

func (c *HTTPClient) Acknowledge(ctx context.Context, messageIDs []int64) (int64, error) {
	body := AckRequest{MessageIDs: messageIDs}

	var resp AckResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/messages/ack", body, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewTransportError(method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransportError("read response", err)
	}

	if resp.StatusCode >= 400 {
		return c.decodeError(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// decodeError rebuilds an AppError from the server's normalized error
// envelope so callers can branch on the same codes on both sides.
func (c *HTTPClient) decodeError(status int, raw []byte) error {
	var body ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Category == "" {
		return errors.New(errors.ErrCodeInternalError, fmt.Sprintf("server returned status %d", status))
	}

	code := errors.ErrorCode(body.Error.Category)
	appErr := errors.New(code, body.Error.Message)
	if body.Error.Reason != "" {
		appErr = appErr.WithContext("reason", body.Error.Reason)
	}
	if code == errors.ErrCodePersistence {
		appErr.Retryable = true
	}
	return appErr
}
