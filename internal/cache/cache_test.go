package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/m-gruen/nexus/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(pageSize, maxMessages int) *Cache {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(NewMemoryKV(), Options{
		PageSize:    pageSize,
		MaxMessages: maxMessages,
		Logger:      logger,
	})
}

func testMessages(n int) []models.Message {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msgs := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, models.Message{
			ID:         int64(i + 1),
			SenderID:   1,
			ReceiverID: 2,
			Content:    fmt.Sprintf("msg %d", i+1),
			SentAt:     base.Add(time.Duration(i) * time.Second),
		})
	}
	return msgs
}

func TestCache_MergeAndPage(t *testing.T) {
	c := testCache(3, 100)
	msgs := testMessages(7)

	added, err := c.Merge(1, 2, msgs)
	require.NoError(t, err)
	assert.Equal(t, 7, added)

	total, err := c.Total(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	// Requested page size is independent of the storage page size.
	page, err := c.Page(1, 2, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 4)
	assert.Equal(t, int64(1), page.Items[0].ID)
	assert.Equal(t, int64(4), page.Items[3].ID)

	page, err = c.Page(1, 2, 1, 4)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, int64(7), page.Items[2].ID)

	// Past the end is empty, not an error.
	page, err = c.Page(1, 2, 5, 4)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, page.TotalPages)
}

func TestCache_Page_InvalidArgs(t *testing.T) {
	c := testCache(3, 100)

	_, err := c.Page(1, 2, -1, 4)
	assert.Error(t, err)

	_, err = c.Page(1, 2, 0, 0)
	assert.Error(t, err)
}

func TestCache_Merge_Idempotent(t *testing.T) {
	c := testCache(3, 100)
	msgs := testMessages(5)

	added, err := c.Merge(1, 2, msgs)
	require.NoError(t, err)
	assert.Equal(t, 5, added)

	// The same batch again adds nothing.
	added, err = c.Merge(1, 2, msgs)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	total, err := c.Total(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestCache_Merge_InterleavesByTimestamp(t *testing.T) {
	c := testCache(10, 100)
	msgs := testMessages(6)

	// Local sends first, then the pulled batch containing the peer's
	// replies with earlier timestamps.
	_, err := c.Merge(1, 2, []models.Message{msgs[1], msgs[4]})
	require.NoError(t, err)
	_, err = c.Merge(1, 2, []models.Message{msgs[0], msgs[2], msgs[3], msgs[5]})
	require.NoError(t, err)

	page, err := c.Page(1, 2, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 6)
	for i, m := range page.Items {
		assert.Equal(t, int64(i+1), m.ID)
	}
}

func TestCache_Merge_EmptyInput(t *testing.T) {
	c := testCache(3, 100)
	added, err := c.Merge(1, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestCache_ConversationsAreIsolated(t *testing.T) {
	c := testCache(3, 100)
	msgs := testMessages(3)

	_, err := c.Merge(1, 2, msgs)
	require.NoError(t, err)

	// Same peer pair, different owner; and same owner, different peer.
	total, err := c.Total(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	total, err = c.Total(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestCache_Compact_DropsOldestAckedOnly(t *testing.T) {
	c := testCache(3, 4)
	msgs := testMessages(7)

	_, err := c.Merge(1, 2, msgs)
	require.NoError(t, err)

	// Entries 2 and 5 stay unacknowledged.
	require.NoError(t, c.MarkAcked(1, 2, []int64{1, 3, 4, 6, 7}))

	dropped, err := c.Compact(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, dropped)

	page, err := c.Page(1, 2, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	// The oldest acked entries (1, 3, 4) are gone; the unacked ones
	// survive regardless of age.
	assert.Equal(t, int64(2), page.Items[0].ID)
	assert.Equal(t, int64(5), page.Items[1].ID)
	assert.Equal(t, int64(6), page.Items[2].ID)
	assert.Equal(t, int64(7), page.Items[3].ID)
}

func TestCache_Compact_UnderCapIsNoop(t *testing.T) {
	c := testCache(3, 100)
	_, err := c.Merge(1, 2, testMessages(5))
	require.NoError(t, err)

	dropped, err := c.Compact(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, dropped)
}

func TestCache_Compact_AllUnackedKeepsEverything(t *testing.T) {
	c := testCache(3, 2)
	_, err := c.Merge(1, 2, testMessages(5))
	require.NoError(t, err)

	dropped, err := c.Compact(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, dropped)

	total, err := c.Total(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestCache_MarkAcked_UnknownIDsIgnored(t *testing.T) {
	c := testCache(3, 100)
	_, err := c.Merge(1, 2, testMessages(2))
	require.NoError(t, err)

	require.NoError(t, c.MarkAcked(1, 2, []int64{99, 100}))
	require.NoError(t, c.MarkAcked(1, 2, nil))
}

func TestCache_WriteAll_DeletesStalePages(t *testing.T) {
	kv := NewMemoryKV()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := New(kv, Options{PageSize: 2, MaxMessages: 2, Logger: logger})

	_, err := c.Merge(1, 2, testMessages(6))
	require.NoError(t, err)
	require.NoError(t, c.MarkAcked(1, 2, []int64{1, 2, 3, 4, 5, 6}))

	// 6 entries over page size 2 used pages 0..2; compaction to 2
	// entries must remove the now-unused trailing pages.
	_, err = c.Compact(1, 2)
	require.NoError(t, err)

	_, found, err := kv.Get(pageKey(1, 2, 1))
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = kv.Get(pageKey(1, 2, 2))
	require.NoError(t, err)
	assert.False(t, found)

	page, err := c.Page(1, 2, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(5), page.Items[0].ID)
}
