package relay

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/m-gruen/nexus/internal/metrics"
	"github.com/m-gruen/nexus/internal/token"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

const joinDeadline = 30 * time.Second

// frame is the wire format in both directions. Client→server carries
// only join; server→client carries new_message and disconnect.
type frame struct {
	Type    string      `json:"type"`
	UserID  int64       `json:"user_id,omitempty"`
	Message interface{} `json:"message,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// Handler upgrades authenticated HTTP requests to relay connections.
// Unauthenticated connections are rejected before the upgrade.
type Handler struct {
	hub          *Hub
	verifier     token.Verifier
	logger       *logrus.Logger
	writeTimeout time.Duration
}

func NewHandler(hub *Hub, verifier token.Verifier, writeTimeout time.Duration, logger *logrus.Logger) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{hub: hub, verifier: verifier, logger: logger, writeTimeout: writeTimeout}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identify(r)
	if err != nil {
		h.logger.WithField("remote", r.RemoteAddr).Warn("Relay handshake rejected: invalid credential")
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithField("user_id", userID).Warnf("Relay upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "") }()

	ctx := r.Context()

	// The client must explicitly join its own identity's channel.
	joinCtx, cancel := context.WithTimeout(ctx, joinDeadline)
	var join frame
	err = wsjson.Read(joinCtx, conn, &join)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "join required")
		return
	}
	if join.Type != "join" || join.UserID != userID {
		_ = wsjson.Write(ctx, conn, frame{Type: string(EventDisconnect), Reason: "join identity mismatch"})
		_ = conn.Close(websocket.StatusPolicyViolation, "join identity mismatch")
		return
	}

	sub := h.hub.Subscribe(userID)
	metrics.RelayConnected()
	defer metrics.RelayDisconnected()

	h.logger.WithField("user_id", userID).Info("Relay channel joined")

	// Reader: joining twice is a no-op, so inbound frames after the join
	// are discarded. A read error means the transport is gone; no retry,
	// the client reconnects and re-pulls.
	go func() {
		for {
			var f frame
			if readErr := wsjson.Read(ctx, conn, &f); readErr != nil {
				h.hub.Leave(sub.Token)
				return
			}
		}
	}()

	for ev := range sub.C {
		writeCtx, cancelWrite := context.WithTimeout(ctx, h.writeTimeout)
		writeErr := wsjson.Write(writeCtx, conn, frame{
			Type:    string(ev.Type),
			Message: ev.Message,
			Reason:  ev.Reason,
		})
		cancelWrite()
		if writeErr != nil {
			h.hub.Leave(sub.Token)
			h.logger.WithField("user_id", userID).Debugf("Relay write failed: %v", writeErr)
			return
		}
		if ev.Type == EventDisconnect {
			break
		}
	}

	// Channel closed: superseded by a newer connection or left by the
	// reader. Either way this connection is done.
	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.WithField("user_id", userID).Info("Relay channel closed")
}

// identify extracts the identity credential from the Authorization
// header or, for browser websocket clients, the token query parameter.
func (h *Handler) identify(r *http.Request) (int64, error) {
	tok := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		tok = strings.TrimPrefix(auth, "Bearer ")
	} else {
		tok = r.URL.Query().Get("token")
	}
	return h.verifier.Verify(tok)
}
