package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-gruen/nexus/internal/errors"
	"github.com/m-gruen/nexus/internal/models"
	"github.com/m-gruen/nexus/internal/relay"
	"github.com/m-gruen/nexus/internal/token"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	sendMsg  *models.Message
	sendErr  error
	fetchMsg []models.Message
	fetchErr error
	ackCount int64
	ackErr   error

	lastSender   int64
	lastReceiver int64
	lastPeer     int64
	lastAckIDs   []int64
}

func (s *stubService) Send(ctx context.Context, senderID, receiverID int64, content, nonce string) (*models.Message, error) {
	s.lastSender = senderID
	s.lastReceiver = receiverID
	return s.sendMsg, s.sendErr
}

func (s *stubService) Fetch(ctx context.Context, userID, peerID int64) ([]models.Message, error) {
	s.lastSender = userID
	s.lastPeer = peerID
	return s.fetchMsg, s.fetchErr
}

func (s *stubService) Acknowledge(ctx context.Context, receiverID int64, messageIDs []int64) (int64, error) {
	s.lastReceiver = receiverID
	s.lastAckIDs = messageIDs
	return s.ackCount, s.ackErr
}

func setupTestServer(t *testing.T, svc *stubService) (*httptest.Server, *token.HMACVerifier) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	verifier, err := token.NewHMACVerifier("http-test-secret")
	require.NoError(t, err)

	hub := relay.NewHub(4, logger)
	wsHandler := relay.NewHandler(hub, verifier, 0, logger)

	srv, err := NewServer(models.ServerConfig{Port: 0}, svc, wsHandler, verifier,
		newLimiterPool(100, 100), logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)

	return ts, verifier
}

func doRequest(t *testing.T, method, url, authToken string, body []byte) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decodeErrorBody(t *testing.T, raw []byte) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestServer_Health(t *testing.T) {
	ts, _ := setupTestServer(t, &stubService{})

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestServer_Metrics(t *testing.T) {
	ts, _ := setupTestServer(t, &stubService{})

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_AuthRequired(t *testing.T) {
	ts, _ := setupTestServer(t, &stubService{})

	resp, raw := doRequest(t, http.MethodGet, ts.URL+"/api/v1/messages?peer=2", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeErrorBody(t, raw)
	assert.Equal(t, string(errors.ErrCodeAuthentication), body.Error.Category)

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/messages?peer=2", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Send(t *testing.T) {
	svc := &stubService{
		sendMsg: &models.Message{ID: 11, SenderID: 1, ReceiverID: 2, Content: "hello"},
	}
	ts, verifier := setupTestServer(t, svc)

	payload := []byte(`{"receiver_id": 2, "content": "hello", "nonce": "n"}`)
	resp, raw := doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages", verifier.Sign(1), payload)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var msg models.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, int64(11), msg.ID)

	// The sender identity comes from the credential, not the payload.
	assert.Equal(t, int64(1), svc.lastSender)
	assert.Equal(t, int64(2), svc.lastReceiver)
}

func TestServer_Send_SchemaValidation(t *testing.T) {
	svc := &stubService{sendMsg: &models.Message{ID: 1}}
	ts, verifier := setupTestServer(t, svc)

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"missing content", `{"receiver_id": 2, "nonce": ""}`},
		{"empty content", `{"receiver_id": 2, "content": "", "nonce": ""}`},
		{"non-integer receiver", `{"receiver_id": "2", "content": "x", "nonce": ""}`},
		{"zero receiver", `{"receiver_id": 0, "content": "x", "nonce": ""}`},
		{"unknown field", `{"receiver_id": 2, "content": "x", "nonce": "", "sender_id": 9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages",
				verifier.Sign(1), []byte(tt.payload))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeErrorBody(t, raw)
			assert.Equal(t, string(errors.ErrCodeValidationFailed), body.Error.Category)
		})
	}
}

func TestServer_Send_PermissionDenied(t *testing.T) {
	svc := &stubService{sendErr: errors.NewPermissionError("user-blocked")}
	ts, verifier := setupTestServer(t, svc)

	payload := []byte(`{"receiver_id": 2, "content": "hello", "nonce": ""}`)
	resp, raw := doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages", verifier.Sign(1), payload)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	body := decodeErrorBody(t, raw)
	assert.Equal(t, string(errors.ErrCodePermissionDenied), body.Error.Category)
	assert.Equal(t, "user-blocked", body.Error.Reason)
}

func TestServer_Send_RateLimited(t *testing.T) {
	svc := &stubService{sendMsg: &models.Message{ID: 1}}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	verifier, err := token.NewHMACVerifier("http-test-secret")
	require.NoError(t, err)
	hub := relay.NewHub(4, logger)
	srv, err := NewServer(models.ServerConfig{}, svc, relay.NewHandler(hub, verifier, 0, logger),
		verifier, newLimiterPool(1, 1), logger)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)

	payload := []byte(`{"receiver_id": 2, "content": "hello", "nonce": ""}`)
	resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages", verifier.Sign(1), payload)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, raw := doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages", verifier.Sign(1), payload)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decodeErrorBody(t, raw)
	assert.Equal(t, string(errors.ErrCodeRateLimit), body.Error.Category)

	// Another identity has its own bucket.
	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages", verifier.Sign(2), payload)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestServer_Send_InternalDetailMasked(t *testing.T) {
	svc := &stubService{sendErr: errors.NewPersistenceError("insert",
		assert.AnError)}
	ts, verifier := setupTestServer(t, svc)

	payload := []byte(`{"receiver_id": 2, "content": "hello", "nonce": ""}`)
	resp, raw := doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages", verifier.Sign(1), payload)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decodeErrorBody(t, raw)
	assert.Equal(t, string(errors.ErrCodePersistence), body.Error.Category)
	assert.NotContains(t, string(raw), assert.AnError.Error())
}

func TestServer_Fetch(t *testing.T) {
	svc := &stubService{fetchMsg: []models.Message{{ID: 1}, {ID: 2}}}
	ts, verifier := setupTestServer(t, svc)

	resp, raw := doRequest(t, http.MethodGet, ts.URL+"/api/v1/messages?peer=7", verifier.Sign(3), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Len(t, out.Messages, 2)
	assert.Equal(t, int64(3), svc.lastSender)
	assert.Equal(t, int64(7), svc.lastPeer)
}

func TestServer_Fetch_BadPeerParam(t *testing.T) {
	ts, verifier := setupTestServer(t, &stubService{})

	for _, peer := range []string{"", "abc", "1.5"} {
		resp, raw := doRequest(t, http.MethodGet, ts.URL+"/api/v1/messages?peer="+peer, verifier.Sign(3), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeErrorBody(t, raw)
		assert.Equal(t, string(errors.ErrCodeValidationFailed), body.Error.Category)
	}
}

func TestServer_Ack(t *testing.T) {
	svc := &stubService{ackCount: 2}
	ts, verifier := setupTestServer(t, svc)

	payload := []byte(`{"message_ids": [4, 5, 99]}`)
	resp, raw := doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages/ack", verifier.Sign(6), payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, int64(2), out.Deleted)
	assert.Equal(t, int64(6), svc.lastReceiver)
	assert.Equal(t, []int64{4, 5, 99}, svc.lastAckIDs)
}

func TestServer_Ack_SchemaValidation(t *testing.T) {
	ts, verifier := setupTestServer(t, &stubService{})

	for _, payload := range []string{
		`{}`,
		`{"message_ids": []}`,
		`{"message_ids": ["a"]}`,
	} {
		resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/v1/messages/ack",
			verifier.Sign(6), []byte(payload))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
	}
}
