package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"expensebot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// Slack implements domain.Channel for Slack using Socket Mode.
type Slack struct {
	botToken string
	appToken string
	client   *slack.Client
	socket   *socketmode.Client
	bus      domain.TurnBus
	logger   *slog.Logger
	botUID   string // the bot's own user ID, to avoid replying to self
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects to Slack via Socket Mode and begins listening for events.
func (s *Slack) Start(ctx context.Context, bus domain.TurnBus) error {
	s.bus = bus

	api := slack.New(
		s.botToken,
		slack.OptionAppLevelToken(s.appToken),
	)
	s.client = api

	// Get bot user ID.
	authResp, err := api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)
	s.socket = socketClient

	bus.OnReply("slack", func(reply domain.Reply) {
		if reply.Content == "" {
			return
		}
		s.sendMessage(reply.ChatID, reply.Content)
	})

	// Event handling goroutine.
	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(eventsAPIEvent)

			default:
				// Acknowledge unknown events to prevent Socket Mode disconnection.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	// Run Socket Mode client (blocks until context is done).
	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

// Stop is a no-op; the socket disconnects when Start's context is cancelled.
func (s *Slack) Stop() error { return nil }

func (s *Slack) Send(ctx context.Context, chatID string, content string) error {
	s.sendMessage(chatID, content)
	return nil
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	switch event.Type {
	case slackevents.CallbackEvent:
		innerEvent := event.InnerEvent
		switch ev := innerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			// Ignore the bot's own messages. Subtypes are dropped except
			// file_share, which is how receipt uploads arrive.
			if ev.User == s.botUID || ev.User == "" {
				return
			}
			if ev.SubType != "" && ev.SubType != "file_share" {
				return
			}

			attachments := imageAttachmentsFromFiles(ev.Files)

			s.logger.Info("slack message received",
				"user", ev.User,
				"channel", ev.Channel,
				"content_len", len(ev.Text),
				"attachments", len(attachments),
			)

			s.bus.Publish(domain.Turn{
				Channel:     "slack",
				ChatID:      ev.Channel,
				SenderID:    ev.User,
				Text:        ev.Text,
				Attachments: attachments,
				Timestamp:   time.Now(),
			})

		case *slackevents.AppMentionEvent:
			// Handle @mentions of the bot.
			s.logger.Info("slack mention received",
				"user", ev.User,
				"channel", ev.Channel,
			)

			// Strip the mention prefix.
			content := ev.Text
			if idx := strings.Index(content, ">"); idx >= 0 {
				content = strings.TrimSpace(content[idx+1:])
			}

			s.bus.Publish(domain.Turn{
				Channel:   "slack",
				ChatID:    ev.Channel,
				SenderID:  ev.User,
				Text:      content,
				Timestamp: time.Now(),
			})
		}
	}
}

// imageAttachmentsFromFiles maps uploaded Slack files with image mimetypes
// onto router attachments. Private file URLs require the bot token when
// fetched; public deployments should front them with an authenticated proxy.
func imageAttachmentsFromFiles(files []slackevents.File) []domain.Attachment {
	var attachments []domain.Attachment
	for _, f := range files {
		if !strings.HasPrefix(f.Mimetype, "image/") {
			continue
		}
		url := f.URLPrivateDownload
		if url == "" {
			url = f.URLPrivate
		}
		if url == "" {
			continue
		}
		attachments = append(attachments, domain.Attachment{
			ContentType: f.Mimetype,
			ContentURL:  url,
		})
	}
	return attachments
}

func (s *Slack) sendMessage(channelID, content string) {
	// Split long messages.
	chunks := splitMessage(content, slackMaxMsgLen)
	for _, chunk := range chunks {
		_, _, err := s.client.PostMessage(
			channelID,
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionAsUser(true),
		)
		if err != nil {
			s.logger.Error("slack send failed", "channel", channelID, "err", err)
		}
	}
}
