package bus

import (
	"log/slog"
	"sync"
	"time"

	"expensebot/internal/domain"

	"github.com/google/uuid"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based turn bus for in-process communication.
type InMemoryBus struct {
	inbound  chan domain.Turn
	handlers map[string]func(domain.Reply)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.Turn, bufferSize),
		handlers: make(map[string]func(domain.Reply)),
		logger:   logger,
	}
}

// Publish enqueues a turn for the router. Turns without an ID get one here
// so every downstream log line and feedback record can reference it.
// Blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(turn domain.Turn) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	select {
	case b.inbound <- turn:
	default:
		// Bus full — wait with timeout instead of dropping
		b.logger.Warn("inbound bus full, waiting...", "channel", turn.Channel, "sender", turn.SenderID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- turn:
			b.logger.Info("turn delivered after wait", "channel", turn.Channel)
		case <-timer.C:
			b.logger.Error("turn dropped: bus full for 10s",
				"channel", turn.Channel,
				"sender", turn.SenderID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Turn {
	return b.inbound
}

func (b *InMemoryBus) SendReply(reply domain.Reply) {
	b.mu.RLock()
	handler, ok := b.handlers[reply.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no reply handler registered for channel",
			"channel", reply.Channel,
		)
		return
	}

	handler(reply)
}

func (b *InMemoryBus) OnReply(channelName string, handler func(domain.Reply)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
