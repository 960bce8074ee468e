package service

import (
	"context"

	"github.com/m-gruen/nexus/internal/errors"
	"github.com/m-gruen/nexus/internal/gate"
	"github.com/m-gruen/nexus/internal/metrics"
	"github.com/m-gruen/nexus/internal/models"
	"github.com/m-gruen/nexus/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Mailbox is the persistence surface the service writes through. The
// service is the mailbox's only writer.
type Mailbox interface {
	InsertMessage(ctx context.Context, senderID, receiverID int64, content, nonce string) (*models.Message, error)
	FetchConversation(ctx context.Context, userA, userB int64) ([]models.Message, error)
	DeleteReceived(ctx context.Context, receiverID int64, ids []int64) (int64, error)
}

// Gate is the permission predicate consulted before every send.
type Gate interface {
	CanSend(ctx context.Context, senderID, receiverID int64) (gate.Decision, error)
	CanFetch(ctx context.Context, userID, peerID int64) (gate.Decision, error)
}

// Notifier is the push relay's send-side surface.
type Notifier interface {
	Notify(receiverID int64, msg *models.Message) bool
}

// MessageService is the server half of the delivery pipeline:
// gate → persist → push.
type MessageService interface {
	Send(ctx context.Context, senderID, receiverID int64, content, nonce string) (*models.Message, error)
	Fetch(ctx context.Context, userID, peerID int64) ([]models.Message, error)
	Acknowledge(ctx context.Context, receiverID int64, messageIDs []int64) (int64, error)
}

type messageService struct {
	logger  *logrus.Logger
	mailbox Mailbox
	gate    Gate
	relay   Notifier
}

func NewMessageService(mailbox Mailbox, g Gate, relay Notifier, logger *logrus.Logger) MessageService {
	if logger == nil {
		logger = logrus.New()
	}
	return &messageService{
		logger:  logger,
		mailbox: mailbox,
		gate:    g,
		relay:   relay,
	}
}

// Send gates, persists, then pushes to the receiver's channel only. The
// push is fire-and-forget: a miss leaves the mailbox row as the durable
// handoff.
func (s *messageService) Send(ctx context.Context, senderID, receiverID int64, content, nonce string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.send")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		attribute.Int64("message.sender_id", senderID),
		attribute.Int64("message.receiver_id", receiverID),
	)

	decision, err := s.gate.CanSend(ctx, senderID, receiverID)
	if err != nil {
		tracing.SetSpanStatus(ctx, codes.Error, "gate error")
		return nil, err
	}
	if !decision.Allowed {
		reason := string(decision.Reason)
		metrics.SendDenied(reason)
		s.logger.WithFields(logrus.Fields{
			LogFieldSenderID:   senderID,
			LogFieldReceiverID: receiverID,
			LogFieldReason:     reason,
		}).Info("Send denied by permission gate")
		tracing.SetSpanStatus(ctx, codes.Error, "denied: "+reason)
		return nil, errors.NewPermissionError(reason)
	}

	msg, err := s.mailbox.InsertMessage(ctx, senderID, receiverID, content, nonce)
	if err != nil {
		tracing.SetSpanStatus(ctx, codes.Error, "persist failed")
		return nil, err
	}
	metrics.MessageSent()

	if s.relay != nil {
		if s.relay.Notify(receiverID, msg) {
			metrics.PushDelivered()
		} else {
			metrics.PushDropped()
		}
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldMessageID:  msg.ID,
		LogFieldSenderID:   senderID,
		LogFieldReceiverID: receiverID,
	}).Debug("Message persisted")
	tracing.AddSpanAttributes(ctx, attribute.Int64("message.id", msg.ID))

	return msg, nil
}

// Fetch returns the full conversation between the caller and peer, in
// mailbox order. Visibility is limited to the pair: the caller is always
// one side of the fetched range.
func (s *messageService) Fetch(ctx context.Context, userID, peerID int64) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.fetch")
	defer span.End()

	decision, err := s.gate.CanFetch(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, errors.NewPermissionError(string(decision.Reason))
	}

	return s.mailbox.FetchConversation(ctx, userID, peerID)
}

// Acknowledge deletes the caller's received mailbox rows. Unknown and
// foreign ids are filtered silently; only a malformed receiver or an
// empty id list is an error.
func (s *messageService) Acknowledge(ctx context.Context, receiverID int64, messageIDs []int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "message.acknowledge")
	defer span.End()

	if receiverID <= 0 {
		return 0, errors.NewValidationError("receiver_id", receiverID, "identity must be positive")
	}
	if len(messageIDs) == 0 {
		return 0, errors.NewValidationError("message_ids", messageIDs, "id list must not be empty")
	}

	deleted, err := s.mailbox.DeleteReceived(ctx, receiverID, messageIDs)
	if err != nil {
		return 0, err
	}
	metrics.MessagesAcked(deleted)

	s.logger.WithFields(logrus.Fields{
		LogFieldReceiverID: receiverID,
		LogFieldCount:      deleted,
	}).Debug("Mailbox rows acknowledged")

	return deleted, nil
}
