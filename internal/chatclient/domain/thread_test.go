package domain

import (
	"fmt"
	"testing"
	"time"

	chat "social_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func msg(i int) chat.Message {
	return chat.Message{
		ID:        fmt.Sprintf("m%03d", i),
		SenderID:  "alice",
		Text:      fmt.Sprintf("text %d", i),
		CreatedAt: base.Add(time.Duration(i) * time.Second),
	}
}

func msgs(from, to int) []chat.Message {
	out := make([]chat.Message, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, msg(i))
	}
	return out
}

func keys(t Thread) []string {
	out := make([]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		out = append(out, e.Key())
	}
	return out
}

func assertAscending(t *testing.T, th Thread) {
	t.Helper()
	ms := th.Messages()
	for i := 1; i < len(ms); i++ {
		assert.False(t, ms[i].CreatedAt.Before(ms[i-1].CreatedAt), "order broken at %d", i)
	}
}

func TestThread_MergeTailDedupes(t *testing.T) {
	th := NewThread().MergeTail(msgs(0, 3))
	th = th.MergeTail(msgs(1, 5))

	assert.Equal(t, []string{"m000", "m001", "m002", "m003", "m004"}, keys(th))
	assertAscending(t, th)
}

func TestThread_MergeHeadPrepends(t *testing.T) {
	th := NewThread().MergeTail(msgs(10, 12))
	th = th.MergeHead(msgs(7, 11))

	assert.Equal(t, []string{"m007", "m008", "m009", "m010", "m011"}, keys(th))
	assertAscending(t, th)
}

func TestThread_InterleavedAppendPrepend(t *testing.T) {
	th := NewThread().MergeTail(msgs(50, 60))
	th = th.MergeTail(msgs(60, 65))
	th = th.MergeHead(msgs(40, 50))
	th = th.MergeTail(msgs(58, 70))
	th = th.MergeHead(msgs(35, 45))

	assert.Len(t, th.Messages(), 35)
	assertAscending(t, th)
}

func TestThread_OutOfOrderTailInsert(t *testing.T) {
	th := NewThread().MergeTail([]chat.Message{msg(1), msg(3)})
	th = th.MergeTail([]chat.Message{msg(2)})

	assert.Equal(t, []string{"m001", "m002", "m003"}, keys(th))
}

func TestThread_ConfirmedSupersedesLocal(t *testing.T) {
	th := NewThread().MergeTail(msgs(0, 2))
	th = th.AppendLocal(Pending("l1", chat.Message{Text: "hi", CreatedAt: base.Add(time.Hour)}))
	th = th.AppendLocal(Pending("l2", chat.Message{Text: "there", CreatedAt: base.Add(time.Hour)}))

	server := msg(5)
	server.ClientID = "l1"
	th = th.MergeTail([]chat.Message{server})

	// confirmed entries stay ahead of the local suffix
	assert.Equal(t, []string{"m000", "m001", "m005", "l2"}, keys(th))

	// the same message polled again is not duplicated
	th = th.MergeTail([]chat.Message{server})
	th = th.Confirm("l1", server)
	assert.Equal(t, []string{"m000", "m001", "m005", "l2"}, keys(th))
}

func TestThread_ConfirmWithoutClientID(t *testing.T) {
	th := NewThread().AppendLocal(Pending("l1", chat.Message{Text: "hi"}))
	m := msg(1)
	th = th.Confirm("l1", m)

	require.Len(t, th.Entries, 1)
	assert.Equal(t, EntryConfirmed, th.Entries[0].Kind)
	assert.Equal(t, "m001", th.Entries[0].Key())
}

func TestThread_ReplaceConfirmed(t *testing.T) {
	th := NewThread().MergeTail(msgs(0, 60))
	th = th.AppendLocal(Pending("l1", chat.Message{Text: "pending"}))

	// re-open returns the latest page, a newer message already polled survives
	th = th.ReplaceConfirmed(msgs(10, 59))
	assert.Len(t, th.Messages(), 50)
	assert.Equal(t, "m010", th.Messages()[0].ID)
	assert.Equal(t, "m059", th.Messages()[49].ID)
	assert.Equal(t, "l1", th.Entries[len(th.Entries)-1].Key())
	assert.False(t, th.HasMoreOlder)

	th = th.ReplaceConfirmed(msgs(100, 150))
	assert.True(t, th.HasMoreOlder)
}

func TestThread_LocalTransitions(t *testing.T) {
	th := NewThread().AppendLocal(Pending("l1", chat.Message{Text: "a"}))
	th = th.AppendLocal(Pending("l2", chat.Message{Text: "b"}))

	failed, ok := th.SetLocalKind("l1", EntryFailed)
	require.True(t, ok)
	e, _ := failed.FindLocal("l1")
	assert.Equal(t, StatusFailed, e.Status())
	assert.Equal(t, "l1", e.Message.ClientID)

	// receiver untouched
	e, _ = th.FindLocal("l1")
	assert.Equal(t, StatusSending, e.Status())

	removed, ok := failed.RemoveLocal("l1")
	require.True(t, ok)
	assert.Equal(t, []string{"l2"}, keys(removed))

	_, ok = removed.RemoveLocal("nope")
	assert.False(t, ok)
}

func TestThread_OldestNewest(t *testing.T) {
	th := NewThread()
	_, ok := th.Oldest()
	assert.False(t, ok)

	th = th.AppendLocal(Pending("l1", chat.Message{CreatedAt: base.Add(time.Hour)}))
	_, ok = th.Newest()
	assert.False(t, ok)

	th = th.MergeTail(msgs(3, 6))
	oldest, _ := th.Oldest()
	newest, _ := th.Newest()
	assert.True(t, oldest.Equal(msg(3).CreatedAt))
	assert.True(t, newest.Equal(msg(5).CreatedAt))
	assert.True(t, th.Has("m004"))
}
