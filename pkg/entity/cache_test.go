package entity

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daredrop/pkg/models"
)

func fakeMessages(n int, from, to time.Time) []models.ChatMessage {
	out := make([]models.ChatMessage, n)
	for i := range out {
		out[i] = models.ChatMessage{
			ID:        gofakeit.UUID(),
			RoomID:    "room",
			UserID:    gofakeit.UUID(),
			Text:      gofakeit.HipsterSentence(),
			CreatedAt: models.NewTime(gofakeit.DateRange(from, to)),
		}
	}
	return out
}

func ids(items []models.ChatMessage) []string {
	out := make([]string, len(items))
	for i, m := range items {
		out[i] = m.ID
	}
	return out
}

func assertOrdered(t *testing.T, items []models.ChatMessage) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		assert.LessOrEqual(t, models.ChatOrder(items[i-1], items[i]), 0, "items %d and %d out of order", i-1, i)
	}
}

func TestBulkLoadThenDistinctInserts(t *testing.T) {
	_ = gofakeit.Seed(42)
	now := time.Now()

	c := New(models.ChatOrder)
	bulk := fakeMessages(30, now.Add(-time.Hour), now)
	c.Load(bulk)

	events := fakeMessages(20, now.Add(-2*time.Hour), now.Add(time.Hour))
	for _, m := range events {
		c.Apply(OpInsert, m)
	}

	items := c.Items()
	assert.Len(t, items, 50)
	assertOrdered(t, items)

	seen := map[string]bool{}
	for _, id := range ids(items) {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	_ = gofakeit.Seed(7)
	now := time.Now()

	c := New(models.ChatOrder)
	c.Load(fakeMessages(10, now.Add(-time.Hour), now))
	evt := fakeMessages(1, now, now.Add(time.Minute))[0]

	c.Apply(OpInsert, evt)
	before := c.Items()
	c.Apply(OpInsert, evt)

	assert.Equal(t, before, c.Items())
}

func TestLoadDeduplicatesLastWins(t *testing.T) {
	c := New(models.ChatOrder)
	c.Load([]models.ChatMessage{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "b"},
		{ID: "a", Text: "second"},
	})

	assert.Equal(t, 2, c.Len())
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", got.Text)
}

func TestApplyUpdateAndDelete(t *testing.T) {
	c := New(models.NewestFirst)
	c.Load([]models.Notification{{ID: "n1", Title: "old"}, {ID: "n2"}})

	c.Apply(OpUpdate, models.Notification{ID: "n1", Title: "new", Read: true})
	got, _ := c.Get("n1")
	assert.Equal(t, "new", got.Title)
	assert.True(t, got.Read)

	c.Apply(OpDelete, models.Notification{ID: "n2"})
	assert.Equal(t, 1, c.Len())

	c.Remove("missing")
	assert.Equal(t, 1, c.Len())
}

func TestPatchAndRevert(t *testing.T) {
	c := New(models.NewestFirst)
	c.Load([]models.Notification{{ID: "n1"}})

	p, ok := c.Patch("n1", func(n models.Notification) models.Notification {
		n.Read = true
		return n
	})
	require.True(t, ok)
	got, _ := c.Get("n1")
	assert.True(t, got.Read)
	assert.True(t, c.Pending("n1"))

	assert.True(t, c.Revert(p))
	got, _ = c.Get("n1")
	assert.False(t, got.Read)
	assert.False(t, c.Pending("n1"))

	assert.False(t, c.Revert(p), "second revert is a no-op")

	_, ok = c.Patch("missing", func(n models.Notification) models.Notification { return n })
	assert.False(t, ok)
}

func TestEventWinsOverStalePatch(t *testing.T) {
	c := New(models.NewestFirst)
	c.Load([]models.Notification{{ID: "n1", Title: "server"}})

	p, _ := c.Patch("n1", func(n models.Notification) models.Notification {
		n.Title = "guess"
		return n
	})
	c.Apply(OpUpdate, models.Notification{ID: "n1", Title: "authoritative"})

	assert.False(t, c.Revert(p))
	got, _ := c.Get("n1")
	assert.Equal(t, "authoritative", got.Title)
}

func TestLoadDiscardsPendingPatches(t *testing.T) {
	c := New(models.ChatOrder)
	echo := c.Insert(models.ChatMessage{ID: "local"})

	c.Load([]models.ChatMessage{{ID: "local", Text: "confirmed"}})

	assert.False(t, c.Revert(echo))
	assert.Equal(t, 1, c.Len())
}

func TestChainedPatchesRevertInReverse(t *testing.T) {
	c := New[models.LiveChallenge](nil)
	c.Load([]models.LiveChallenge{{ID: "c1", CurrentParticipants: 1}})

	inc := func(ch models.LiveChallenge) models.LiveChallenge {
		ch.CurrentParticipants++
		return ch
	}
	p1, _ := c.Patch("c1", inc)
	p2, _ := c.Patch("c1", inc)

	got, _ := c.Get("c1")
	assert.Equal(t, 3, got.CurrentParticipants)

	require.True(t, c.Revert(p2))
	got, _ = c.Get("c1")
	assert.Equal(t, 2, got.CurrentParticipants)

	require.True(t, c.Revert(p1))
	got, _ = c.Get("c1")
	assert.Equal(t, 1, got.CurrentParticipants)
}

func TestRevertingBasePatchDiscardsLaterOnes(t *testing.T) {
	c := New[models.LiveChallenge](nil)
	c.Load([]models.LiveChallenge{{ID: "c1", CurrentParticipants: 1}})

	inc := func(ch models.LiveChallenge) models.LiveChallenge {
		ch.CurrentParticipants++
		return ch
	}
	p1, _ := c.Patch("c1", inc)
	p2, _ := c.Patch("c1", inc)

	require.True(t, c.Revert(p1))
	assert.False(t, c.Revert(p2))
	got, _ := c.Get("c1")
	assert.Equal(t, 1, got.CurrentParticipants)
}

func TestInsertEchoThenEventDeduplicates(t *testing.T) {
	c := New(models.ChatOrder)
	echo := c.Insert(models.ChatMessage{ID: "m1", Text: "hi"})
	c.Apply(OpInsert, models.ChatMessage{ID: "m1", Text: "hi", Author: &models.Author{Username: "sam"}})

	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Revert(echo))
}

func TestInsertRevertRemovesEcho(t *testing.T) {
	c := New(models.ChatOrder)
	echo := c.Insert(models.ChatMessage{ID: "m1"})

	assert.True(t, c.Revert(echo))
	assert.Equal(t, 0, c.Len())
}

func TestHideSurvivesLoad(t *testing.T) {
	c := New[models.RecommendedUser](models.MostMutual)
	users := []models.RecommendedUser{
		{User: models.User{ID: "u1"}},
		{User: models.User{ID: "u2"}},
	}
	c.Load(users)
	c.Hide("u1")

	c.Load(users)

	assert.True(t, c.Hidden("u1"))
	require.Len(t, c.Items(), 1)
	assert.Equal(t, "u2", c.Items()[0].Key())
	assert.Equal(t, 1, c.Len())
}

func TestChangedSignalsAndVersion(t *testing.T) {
	c := New(models.ChatOrder)
	v0 := c.Version()

	c.Upsert(models.ChatMessage{ID: "a"})
	c.Upsert(models.ChatMessage{ID: "b"})

	assert.Greater(t, c.Version(), v0)
	select {
	case <-c.Changed():
	default:
		t.Fatal("expected change signal")
	}
	select {
	case <-c.Changed():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestDiscardRevertRestores(t *testing.T) {
	now := time.Now()
	msgs := fakeMessages(3, now.Add(-time.Hour), now)
	c := New(models.ChatOrder)
	c.Load(msgs)

	p, ok := c.Discard(msgs[1].ID)
	require.True(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Pending(msgs[1].ID))

	assert.True(t, c.Revert(p))
	assert.Equal(t, 3, c.Len())
	assertOrdered(t, c.Items())

	_, ok = c.Discard("missing")
	assert.False(t, ok)
}

func TestDiscardThenRemoveCannotRevert(t *testing.T) {
	now := time.Now()
	msgs := fakeMessages(2, now.Add(-time.Hour), now)
	c := New(models.ChatOrder)
	c.Load(msgs)

	p, ok := c.Discard(msgs[0].ID)
	require.True(t, ok)
	c.Remove(msgs[0].ID)

	assert.False(t, c.Revert(p))
	_, found := c.Get(msgs[0].ID)
	assert.False(t, found)
}

func TestLoadFromKeepsInsertsMadeDuringQuery(t *testing.T) {
	_ = gofakeit.Seed(7)
	now := time.Now()
	c := New(models.ChatOrder)

	ticket := c.BeginLoad()
	events := fakeMessages(5, now, now.Add(time.Minute))
	for _, m := range events {
		c.Apply(OpInsert, m)
	}
	bulk := fakeMessages(10, now.Add(-time.Hour), now.Add(-time.Minute))
	require.True(t, c.LoadFrom(ticket, bulk))

	assert.Len(t, c.Items(), 15)
	assertOrdered(t, c.Items())
	for _, m := range events {
		_, ok := c.Get(m.ID)
		assert.True(t, ok, "insert %s lost to the bulk load", m.ID)
	}
}

func TestLoadFromReplaysDeletesMadeDuringQuery(t *testing.T) {
	now := time.Now()
	bulk := fakeMessages(3, now.Add(-time.Hour), now)
	c := New(models.ChatOrder)
	c.Load(bulk)

	ticket := c.BeginLoad()
	c.Remove(bulk[0].ID)
	require.True(t, c.LoadFrom(ticket, bulk))

	_, ok := c.Get(bulk[0].ID)
	assert.False(t, ok, "a delete seen during the query must not be resurrected")
	assert.Len(t, c.Items(), 2)
}

func TestLoadFromDropsOlderQuery(t *testing.T) {
	now := time.Now()
	older := fakeMessages(1, now.Add(-time.Hour), now)
	newer := append(fakeMessages(1, now.Add(-time.Hour), now), older...)
	c := New(models.ChatOrder)

	first := c.BeginLoad()
	second := c.BeginLoad()
	require.True(t, c.LoadFrom(second, newer))
	assert.True(t, c.Stale(first))
	assert.False(t, c.LoadFrom(first, older))
	assert.Len(t, c.Items(), 2)
}

func TestLoadSupersedesQueriesInFlight(t *testing.T) {
	now := time.Now()
	c := New(models.ChatOrder)

	ticket := c.BeginLoad()
	c.Load(fakeMessages(2, now.Add(-time.Hour), now))
	assert.False(t, c.LoadFrom(ticket, nil))
	assert.Len(t, c.Items(), 2)
}

func TestEndLoadReleasesJournal(t *testing.T) {
	now := time.Now()
	c := New(models.ChatOrder)

	ticket := c.BeginLoad()
	c.Apply(OpInsert, fakeMessages(1, now, now)[0])
	c.EndLoad(ticket)
	c.EndLoad(ticket)
	assert.Empty(t, c.journal)

	c.Apply(OpInsert, fakeMessages(1, now, now)[0])
	assert.Empty(t, c.journal, "writes are only journaled while a query is in flight")
}
