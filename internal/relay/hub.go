// Package relay is the real-time push channel. It is best-effort by
// design: durability lives in the mailbox, the relay only shortens the
// time until the receiver pulls.
package relay

import (
	"sync"

	"github.com/m-gruen/nexus/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType is the server→client frame type.
type EventType string

const (
	EventNewMessage EventType = "new_message"
	EventDisconnect EventType = "disconnect"
)

// Event is one frame pushed to a subscriber.
type Event struct {
	Type    EventType       `json:"type"`
	Message *models.Message `json:"message,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Subscription is a live channel for one identity. Token is the
// capability used to leave; holding the Subscription is holding the
// right to unsubscribe it.
type Subscription struct {
	Token  string
	UserID int64
	C      <-chan Event

	ch chan Event
}

// Hub owns at most one live subscription per identity. It is an
// explicit value so tests can instantiate independent instances.
type Hub struct {
	mu      sync.Mutex
	byUser  map[int64]*Subscription
	byToken map[string]*Subscription
	buffer  int
	logger  *logrus.Logger
}

func NewHub(buffer int, logger *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		byUser:  make(map[int64]*Subscription),
		byToken: make(map[string]*Subscription),
		buffer:  buffer,
		logger:  logger,
	}
}

// Subscribe opens the identity's channel. A client holds at most one
// active channel per identity: subscribing again supersedes the prior
// subscription, which receives a disconnect event and is closed.
func (h *Hub) Subscribe(userID int64) *Subscription {
	h.mu.Lock()
	prior := h.byUser[userID]
	sub := &Subscription{
		Token:  uuid.NewString(),
		UserID: userID,
		ch:     make(chan Event, h.buffer),
	}
	sub.C = sub.ch
	h.byUser[userID] = sub
	h.byToken[sub.Token] = sub
	if prior != nil {
		delete(h.byToken, prior.Token)
		// Best effort: a full prior channel just closes without the frame.
		// Channel sends and closes stay inside the critical section so a
		// concurrent Notify can never hit a closed channel.
		select {
		case prior.ch <- Event{Type: EventDisconnect, Reason: "superseded"}:
		default:
		}
		close(prior.ch)
	}
	h.mu.Unlock()

	if prior != nil {
		h.logger.WithField("user_id", userID).Info("Relay subscription superseded")
	}

	return sub
}

// Leave closes the subscription identified by its capability token.
// Returns false when the token no longer refers to a live subscription.
func (h *Hub) Leave(token string) bool {
	h.mu.Lock()
	sub, ok := h.byToken[token]
	if ok {
		delete(h.byToken, token)
		if h.byUser[sub.UserID] == sub {
			delete(h.byUser, sub.UserID)
		}
		close(sub.ch)
	}
	h.mu.Unlock()

	return ok
}

// Notify emits a new_message event to the receiver's channel only.
// Fire-and-forget: an offline receiver or a full buffer drops the push
// and returns false. The mailbox row still exists either way.
func (h *Hub) Notify(receiverID int64, msg *models.Message) bool {
	h.mu.Lock()
	sub := h.byUser[receiverID]
	if sub == nil {
		h.mu.Unlock()
		return false
	}

	// The send happens under the same mutex that guards the channel
	// closes in Subscribe and Leave. It is non-blocking, so holding the
	// lock here never stalls other hub operations.
	delivered := false
	select {
	case sub.ch <- Event{Type: EventNewMessage, Message: msg}:
		delivered = true
	default:
	}
	h.mu.Unlock()

	if !delivered {
		h.logger.WithFields(logrus.Fields{
			"user_id":    receiverID,
			"message_id": msg.ID,
		}).Warn("Relay buffer full, push dropped")
	}
	return delivered
}

// Connected reports whether the identity has a live subscription.
func (h *Hub) Connected(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byUser[userID] != nil
}
