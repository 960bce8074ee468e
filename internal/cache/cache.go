// Package cache is the client-resident durable conversation history.
// Its lifetime is independent of the server mailbox: the mailbox copy of
// a message dies on acknowledgment, the cache copy lives until Compact
// drops it.
package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/m-gruen/nexus/internal/constants"
	"github.com/m-gruen/nexus/internal/models"

	"github.com/sirupsen/logrus"
)

// entry is one cached message plus its mailbox-acknowledgment state.
// Compact never drops an entry that has not been acknowledged.
type entry struct {
	Message models.Message `json:"message"`
	Acked   bool           `json:"acked"`
}

type meta struct {
	Total int `json:"total"`
}

// Page is one slice of conversation history.
type Page struct {
	Items      []models.Message `json:"items"`
	TotalPages int              `json:"total_pages"`
}

type Options struct {
	// PageSize is the internal storage page size; each stored page
	// commits all-or-nothing.
	PageSize int
	// MaxMessages caps what Compact retains per conversation.
	MaxMessages int
	Logger      *logrus.Logger
}

// Cache is a durable, paginated, per-conversation store keyed by
// (owner, peer), over an injected KV.
type Cache struct {
	kv          KV
	pageSize    int
	maxMessages int
	logger      *logrus.Logger

	// serializes read-modify-write cycles on conversation pages
	mu sync.Mutex
}

func New(kv KV, opts Options) *Cache {
	if opts.PageSize <= 0 {
		opts.PageSize = constants.DefaultCachePageSize
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = constants.DefaultCacheMaxMessages
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Cache{
		kv:          kv,
		pageSize:    opts.PageSize,
		maxMessages: opts.MaxMessages,
		logger:      opts.Logger,
	}
}

func convKey(ownerID, peerID int64) string {
	return fmt.Sprintf("conv:%d:%d", ownerID, peerID)
}

func metaKey(ownerID, peerID int64) string {
	return convKey(ownerID, peerID) + ":meta"
}

func pageKey(ownerID, peerID int64, page int) string {
	return fmt.Sprintf("%s:page:%06d", convKey(ownerID, peerID), page)
}

// Page returns the pageIndex-th slice of size pageSize, in the same
// timestamp-ascending, id-tie-broken order the mailbox fetch uses, so
// the two merge without re-sorting.
func (c *Cache) Page(ownerID, peerID int64, pageIndex, pageSize int) (*Page, error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("page index must not be negative")
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	total, err := c.readMeta(ownerID, peerID)
	if err != nil {
		return nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize

	start := pageIndex * pageSize
	if start >= total {
		return &Page{Items: []models.Message{}, TotalPages: totalPages}, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	entries, err := c.readRange(ownerID, peerID, start, end)
	if err != nil {
		return nil, err
	}

	items := make([]models.Message, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.Message)
	}
	return &Page{Items: items, TotalPages: totalPages}, nil
}

// Merge appends pulled messages that are not already present, dedup by
// message id, keeping mailbox order. Merging the same batch twice is a
// no-op the second time. Returns how many messages were actually added.
func (c *Cache) Merge(ownerID, peerID int64, newMessages []models.Message) (int, error) {
	if len(newMessages) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.readAll(ownerID, peerID)
	if err != nil {
		return 0, err
	}

	seen := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		seen[e.Message.ID] = struct{}{}
	}

	added := 0
	for _, msg := range newMessages {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		entries = append(entries, entry{Message: msg})
		added++
	}
	if added == 0 {
		return 0, nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Message, entries[j].Message
		if !a.SentAt.Equal(b.SentAt) {
			return a.SentAt.Before(b.SentAt)
		}
		return a.ID < b.ID
	})

	if err := c.writeAll(ownerID, peerID, entries, len(entries)-added); err != nil {
		return 0, err
	}
	return added, nil
}

// MarkAcked records that the mailbox rows for these ids were deleted.
// Only acknowledged entries are eligible for compaction.
func (c *Cache) MarkAcked(ownerID, peerID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.readAll(ownerID, peerID)
	if err != nil {
		return err
	}

	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	changed := false
	for i := range entries {
		if _, ok := want[entries[i].Message.ID]; ok && !entries[i].Acked {
			entries[i].Acked = true
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return c.writeAll(ownerID, peerID, entries, len(entries))
}

// Compact applies the retention policy: drop the oldest acknowledged
// entries beyond the per-conversation cap. Unacknowledged entries are
// never dropped regardless of age, since their only other copy is the
// mailbox row scheduled for deletion.
func (c *Cache) Compact(ownerID, peerID int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.readAll(ownerID, peerID)
	if err != nil {
		return 0, err
	}
	if len(entries) <= c.maxMessages {
		return 0, nil
	}

	excess := len(entries) - c.maxMessages
	kept := make([]entry, 0, c.maxMessages)
	dropped := 0
	for _, e := range entries {
		if dropped < excess && e.Acked {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	if dropped == 0 {
		return 0, nil
	}

	if err := c.writeAll(ownerID, peerID, kept, len(entries)); err != nil {
		return 0, err
	}

	c.logger.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"peer_id":  peerID,
		"dropped":  dropped,
	}).Debug("Conversation compacted")
	return dropped, nil
}

// Total returns the number of cached messages for a conversation.
func (c *Cache) Total(ownerID, peerID int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readMeta(ownerID, peerID)
}

func (c *Cache) readMeta(ownerID, peerID int64) (int, error) {
	raw, found, err := c.kv.Get(metaKey(ownerID, peerID))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0, fmt.Errorf("corrupt conversation meta: %w", err)
	}
	return m.Total, nil
}

func (c *Cache) readPage(ownerID, peerID int64, page int) ([]entry, error) {
	raw, found, err := c.kv.Get(pageKey(ownerID, peerID, page))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("corrupt conversation page %d: %w", page, err)
	}
	return entries, nil
}

// readRange loads entries [start, end) by touching only the storage
// pages that cover the range.
func (c *Cache) readRange(ownerID, peerID int64, start, end int) ([]entry, error) {
	firstPage := start / c.pageSize
	lastPage := (end - 1) / c.pageSize

	out := make([]entry, 0, end-start)
	for p := firstPage; p <= lastPage; p++ {
		pageEntries, err := c.readPage(ownerID, peerID, p)
		if err != nil {
			return nil, err
		}
		base := p * c.pageSize
		for i, e := range pageEntries {
			idx := base + i
			if idx >= start && idx < end {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (c *Cache) readAll(ownerID, peerID int64) ([]entry, error) {
	total, err := c.readMeta(ownerID, peerID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	return c.readRange(ownerID, peerID, 0, total)
}

// writeAll rewrites the conversation's pages and meta in one atomic
// commit. prevTotal is the entry count before the rewrite, used to
// delete storage pages that fell out of use.
func (c *Cache) writeAll(ownerID, peerID int64, entries []entry, prevTotal int) error {
	return c.kv.Commit(func(b Batch) error {
		pages := (len(entries) + c.pageSize - 1) / c.pageSize
		for p := 0; p < pages; p++ {
			lo := p * c.pageSize
			hi := lo + c.pageSize
			if hi > len(entries) {
				hi = len(entries)
			}
			raw, err := json.Marshal(entries[lo:hi])
			if err != nil {
				return fmt.Errorf("failed to encode page %d: %w", p, err)
			}
			b.Set(pageKey(ownerID, peerID, p), raw)
		}

		prevPages := (prevTotal + c.pageSize - 1) / c.pageSize
		for p := pages; p < prevPages; p++ {
			b.Delete(pageKey(ownerID, peerID, p))
		}

		raw, err := json.Marshal(meta{Total: len(entries)})
		if err != nil {
			return fmt.Errorf("failed to encode meta: %w", err)
		}
		b.Set(metaKey(ownerID, peerID), raw)
		return nil
	})
}
