// Package client is the device-resident half of the delivery pipeline:
// it reconciles the durable local cache with the server mailbox and
// feeds live pushes into the open conversation view.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/m-gruen/nexus/internal/cache"
	"github.com/m-gruen/nexus/internal/constants"
	"github.com/m-gruen/nexus/internal/models"
	"github.com/m-gruen/nexus/internal/retry"
	"github.com/m-gruen/nexus/pkg/mailbox"

	"github.com/sirupsen/logrus"
)

// Store is the LocalCache surface the coordinator drives.
type Store interface {
	Page(ownerID, peerID int64, pageIndex, pageSize int) (*cache.Page, error)
	Merge(ownerID, peerID int64, newMessages []models.Message) (int, error)
	MarkAcked(ownerID, peerID int64, ids []int64) error
	Compact(ownerID, peerID int64) (int, error)
}

// Coordinator owns the open conversations of one local user.
type Coordinator struct {
	userID   int64
	api      mailbox.Client
	store    Store
	pageSize int
	backoff  *retry.Backoff
	logger   *logrus.Logger

	mu    sync.Mutex
	convs map[int64]*Conversation
}

type Options struct {
	PageSize int
	Backoff  retry.BackoffConfig
	Logger   *logrus.Logger
}

func NewCoordinator(userID int64, api mailbox.Client, store Store, opts Options) *Coordinator {
	if opts.PageSize <= 0 {
		opts.PageSize = constants.DefaultFetchPageSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Coordinator{
		userID:   userID,
		api:      api,
		store:    store,
		pageSize: opts.PageSize,
		backoff:  retry.NewBackoff(opts.Backoff),
		logger:   opts.Logger,
		convs:    make(map[int64]*Conversation),
	}
}

// Conversation is one open view. History is ascending, matching the
// cache and mailbox order.
type Conversation struct {
	coord *Coordinator
	peer  int64

	mu         sync.Mutex
	history    []models.Message
	seen       map[int64]struct{}
	synced     bool // initial pull, merge and ack completed
	loading    bool // a page load is in flight
	nextPage   int
	totalPages int
	pending    []models.Message // pushes buffered until synced
	closed     bool

	cancel context.CancelFunc

	// SyncDone closes when the initial mailbox reconciliation finishes.
	SyncDone chan struct{}
}

// Open starts a conversation view: any stale view for the peer is
// dropped, page 0 is served from the local cache immediately, and the
// mailbox pull/merge/acknowledge cycle runs asynchronously.
func (c *Coordinator) Open(ctx context.Context, peerID int64) (*Conversation, error) {
	if peerID <= 0 {
		return nil, fmt.Errorf("peer id must be positive")
	}
	if peerID == c.userID {
		return nil, fmt.Errorf("cannot open a conversation with yourself")
	}

	c.mu.Lock()
	if stale, ok := c.convs[peerID]; ok {
		stale.cancel()
		delete(c.convs, peerID)
	}

	convCtx, cancel := context.WithCancel(ctx)
	conv := &Conversation{
		coord:    c,
		peer:     peerID,
		seen:     make(map[int64]struct{}),
		cancel:   cancel,
		SyncDone: make(chan struct{}),
	}
	c.convs[peerID] = conv
	c.mu.Unlock()

	page, err := c.store.Page(c.userID, peerID, 0, c.pageSize)
	if err != nil {
		cancel()
		c.drop(conv)
		return nil, fmt.Errorf("failed to load cached history: %w", err)
	}

	conv.mu.Lock()
	conv.history = append(conv.history, page.Items...)
	for _, m := range page.Items {
		conv.seen[m.ID] = struct{}{}
	}
	conv.nextPage = 1
	conv.totalPages = page.TotalPages
	conv.mu.Unlock()

	go conv.sync(convCtx)

	return conv, nil
}

// sync pulls the mailbox, merges into the cache, and acknowledges every
// pulled message this user received. The acknowledgment runs on a
// detached context: closing the conversation must not cancel it, or the
// mailbox would bloat.
func (conv *Conversation) sync(ctx context.Context) {
	defer close(conv.SyncDone)
	c := conv.coord

	var pulled []models.Message
	err := c.backoff.Retry(ctx, func() error {
		var fetchErr error
		pulled, fetchErr = c.api.Fetch(ctx, conv.peer)
		return fetchErr
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"peer_id": conv.peer,
		}).Warnf("Mailbox pull failed, will retry on next open: %v", err)
		// Serve what the cache has; the mailbox retains everything.
		conv.finishSync()
		return
	}

	if _, err := c.store.Merge(c.userID, conv.peer, pulled); err != nil {
		c.logger.Errorf("Cache merge failed: %v", err)
		conv.finishSync()
		return
	}

	received := make([]int64, 0, len(pulled))
	for _, m := range pulled {
		if m.ReceiverID == c.userID {
			received = append(received, m.ID)
		}
	}
	if len(received) > 0 {
		// Detached context: an in-flight acknowledgment outlives Close.
		if _, err := c.api.Acknowledge(context.Background(), received); err != nil {
			c.logger.Warnf("Acknowledgment failed, mailbox rows retained: %v", err)
		} else if err := c.store.MarkAcked(c.userID, conv.peer, received); err != nil {
			c.logger.Errorf("Failed to record acknowledgment: %v", err)
		}
	}

	conv.finishSync()
}

// finishSync rebuilds the loaded window from the cache, flushes pushes
// buffered during the pull, and opens the conversation for live appends.
func (conv *Conversation) finishSync() {
	c := conv.coord

	conv.mu.Lock()
	defer conv.mu.Unlock()

	loadedPages := conv.nextPage
	rebuilt := make([]models.Message, 0, len(conv.history))
	seen := make(map[int64]struct{})
	rebuildOK := true
	totalPages := conv.totalPages
	for p := 0; p < loadedPages; p++ {
		page, err := c.store.Page(c.userID, conv.peer, p, c.pageSize)
		if err != nil {
			c.logger.Errorf("Failed to rebuild view: %v", err)
			rebuildOK = false
			break
		}
		for _, m := range page.Items {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			rebuilt = append(rebuilt, m)
		}
		if totalPages < page.TotalPages {
			totalPages = page.TotalPages
		}
	}
	// A partial rebuild would shrink an already-visible view. Keep what
	// the user can see and let the next open reconcile with the cache.
	if rebuildOK {
		conv.history = rebuilt
		conv.seen = seen
		conv.totalPages = totalPages
	}
	conv.synced = true

	// Buffered pushes append after history, never ahead of it.
	if len(conv.pending) > 0 {
		if _, err := c.store.Merge(c.userID, conv.peer, conv.pending); err != nil {
			c.logger.Errorf("Failed to cache buffered pushes: %v", err)
		}
		for _, m := range conv.pending {
			conv.appendLocked(m)
		}
		conv.pending = nil
	}
}

// HandlePush routes a relay push into the open conversation. A push
// from the local user is skipped: the optimistic echo was appended at
// send time. Pushes for closed conversations are ignored; their mailbox
// rows are pulled on next open.
func (c *Coordinator) HandlePush(msg models.Message) {
	if msg.SenderID == c.userID {
		return
	}

	peer := msg.PeerOf(c.userID)
	c.mu.Lock()
	conv := c.convs[peer]
	c.mu.Unlock()
	if conv == nil {
		return
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.closed {
		return
	}

	// Ordering guarantee: never insert a push ahead of the initial merge.
	if !conv.synced {
		conv.pending = append(conv.pending, msg)
		return
	}

	if _, err := c.store.Merge(c.userID, peer, []models.Message{msg}); err != nil {
		c.logger.Errorf("Failed to cache pushed message: %v", err)
		return
	}
	conv.appendLocked(msg)
}

// Send delivers through the mailbox API and appends the returned record
// as the optimistic local echo.
func (c *Coordinator) Send(ctx context.Context, peerID int64, content, nonce string) (*models.Message, error) {
	msg, err := c.api.Send(ctx, peerID, content, nonce)
	if err != nil {
		return nil, err
	}

	if _, err := c.store.Merge(c.userID, peerID, []models.Message{*msg}); err != nil {
		c.logger.Errorf("Failed to cache sent message: %v", err)
	}

	c.mu.Lock()
	conv := c.convs[peerID]
	c.mu.Unlock()
	if conv != nil {
		conv.mu.Lock()
		conv.appendLocked(*msg)
		conv.mu.Unlock()
	}

	return msg, nil
}

// LoadNextPage extends the view by one cache page. Page loads are
// serialized per conversation: a call while one is in flight is a no-op
// and reports false.
func (conv *Conversation) LoadNextPage() (bool, error) {
	conv.mu.Lock()
	if conv.closed || conv.loading || conv.nextPage >= conv.totalPages {
		conv.mu.Unlock()
		return false, nil
	}
	conv.loading = true
	pageIndex := conv.nextPage
	conv.mu.Unlock()

	c := conv.coord
	page, err := c.store.Page(c.userID, conv.peer, pageIndex, c.pageSize)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.loading = false
	if err != nil {
		return false, err
	}

	for _, m := range page.Items {
		conv.appendLocked(m)
	}
	conv.nextPage = pageIndex + 1
	conv.totalPages = page.TotalPages
	return true, nil
}

// History returns a copy of the visible messages.
func (conv *Conversation) History() []models.Message {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	out := make([]models.Message, len(conv.history))
	copy(out, conv.history)
	return out
}

// Synced reports whether the initial mailbox reconciliation finished.
func (conv *Conversation) Synced() bool {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.synced
}

// Close tears the view down: pending page loads are cancelled, the peer
// stops receiving push routing, and the cache compacts. An in-flight
// acknowledgment keeps running on its detached context.
func (conv *Conversation) Close() {
	conv.mu.Lock()
	if conv.closed {
		conv.mu.Unlock()
		return
	}
	conv.closed = true
	conv.mu.Unlock()

	conv.cancel()
	conv.coord.drop(conv)

	if _, err := conv.coord.store.Compact(conv.coord.userID, conv.peer); err != nil {
		conv.coord.logger.Warnf("Compaction failed: %v", err)
	}
}

func (c *Coordinator) drop(conv *Conversation) {
	c.mu.Lock()
	if c.convs[conv.peer] == conv {
		delete(c.convs, conv.peer)
	}
	c.mu.Unlock()
}

// appendLocked appends msg to the visible history, dedup by id. Caller
// holds conv.mu.
func (conv *Conversation) appendLocked(msg models.Message) {
	if _, dup := conv.seen[msg.ID]; dup {
		return
	}
	conv.seen[msg.ID] = struct{}{}
	conv.history = append(conv.history, msg)
}
