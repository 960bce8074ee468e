package client

import (
	"context"
	"net/http"

	"github.com/m-gruen/nexus/internal/models"
	"github.com/m-gruen/nexus/internal/retry"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// wire frame of the relay channel, both directions.
type relayFrame struct {
	Type    string          `json:"type"`
	UserID  int64           `json:"user_id,omitempty"`
	Message *models.Message `json:"message,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Subscriber maintains the device's relay connection. Transport errors
// tear the channel down and trigger a reconnect with backoff; any gap is
// covered by "pull on next open", never by gap detection over the wire.
type Subscriber struct {
	url       string
	authToken string
	userID    int64
	onMessage func(models.Message)
	backoff   *retry.Backoff
	logger    *logrus.Logger
}

func NewSubscriber(url, authToken string, userID int64, onMessage func(models.Message), backoffCfg retry.BackoffConfig, logger *logrus.Logger) *Subscriber {
	if logger == nil {
		logger = logrus.New()
	}
	return &Subscriber{
		url:       url,
		authToken: authToken,
		userID:    userID,
		onMessage: onMessage,
		backoff:   retry.NewBackoff(backoffCfg),
		logger:    logger,
	}
}

// Run connects, joins, and dispatches pushes until the context ends or
// the server supersedes this connection with a newer one for the same
// identity.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		superseded, err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if superseded {
			s.logger.Info("Relay connection superseded by a newer one, stopping")
			return nil
		}
		if err != nil {
			s.logger.Debugf("Relay connection lost: %v", err)
		}

		// Reconnect with backoff; the first successful dial resets the loop.
		err = s.backoff.Retry(ctx, func() error {
			var dialErr error
			superseded, dialErr = s.connectOnce(ctx)
			return dialErr
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if superseded {
			return nil
		}
		if err != nil {
			s.logger.Warnf("Relay reconnect exhausted retries, starting over: %v", err)
		}
	}
}

// connectOnce runs one connection lifetime. It reports whether the
// server ended it with a "superseded" disconnect.
func (s *Subscriber) connectOnce(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.authToken)

	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "") }()

	// Explicitly join our own identity's channel.
	if err := wsjson.Write(ctx, conn, relayFrame{Type: "join", UserID: s.userID}); err != nil {
		return false, err
	}

	s.logger.WithField("user_id", s.userID).Debug("Relay channel joined")

	for {
		var f relayFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return false, err
		}

		switch f.Type {
		case "new_message":
			if f.Message != nil && s.onMessage != nil {
				s.onMessage(*f.Message)
			}
		case "disconnect":
			// Informational only; "superseded" means another connection
			// under this identity replaced us.
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return f.Reason == "superseded", nil
		}
	}
}
