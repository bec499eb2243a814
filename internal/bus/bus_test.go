package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"expensebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	b.Publish(domain.Turn{Channel: "cli", ChatID: "direct", Text: "hello"})

	select {
	case turn := <-b.Subscribe():
		if turn.Text != "hello" {
			t.Errorf("expected hello, got %q", turn.Text)
		}
		if turn.ID == "" {
			t.Error("expected turn ID to be assigned on publish")
		}
		if turn.Timestamp.IsZero() {
			t.Error("expected timestamp to be assigned on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for turn")
	}
}

func TestPublishKeepsExistingID(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	b.Publish(domain.Turn{ID: "turn-1", Channel: "cli", Text: "hi"})

	turn := <-b.Subscribe()
	if turn.ID != "turn-1" {
		t.Errorf("expected turn-1, got %q", turn.ID)
	}
}

func TestSendReply(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	got := make(chan domain.Reply, 1)
	b.OnReply("cli", func(r domain.Reply) { got <- r })

	b.SendReply(domain.Reply{Channel: "cli", ChatID: "direct", Content: "answer"})

	select {
	case r := <-got:
		if r.Content != "answer" {
			t.Errorf("expected answer, got %q", r.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("reply handler was not called")
	}
}

func TestSendReplyNoHandler(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	// Must not panic when no handler is registered.
	b.SendReply(domain.Reply{Channel: "unknown", Content: "x"})
}

func TestPublishAfterClose(t *testing.T) {
	b := New(10, testLogger())
	b.Close()

	// Must not panic on a closed bus.
	b.Publish(domain.Turn{Channel: "cli", Text: "late"})
}
