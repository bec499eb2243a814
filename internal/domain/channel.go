package domain

import "context"

// Channel is the interface for user-facing I/O (webhook, Telegram, Slack,
// Discord, CLI). Channels publish turns to the bus and deliver replies.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus TurnBus) error
	Stop() error
	Send(ctx context.Context, chatID string, content string) error
}
