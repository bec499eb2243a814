package domain

import "time"

// TeamsFileDownloadContentType marks platform file-reference attachments
// whose real download URL lives inside the Content payload instead of
// ContentURL.
const TeamsFileDownloadContentType = "application/vnd.microsoft.teams.file.download.info"

// Turn is one inbound message from a channel: the text the user typed plus
// whatever attachments the platform delivered with it. A Turn is read-only
// once published to the bus.
type Turn struct {
	ID          string
	Channel     string
	ChatID      string
	SenderID    string
	Text        string
	Attachments []Attachment
	Timestamp   time.Time
}

// Attachment mirrors the platform attachment shape: a MIME content type, an
// optional direct URL, and a platform-specific payload for file references.
type Attachment struct {
	ContentType string
	ContentURL  string
	Content     map[string]any
}

// Reply is the bot's answer routed back to the originating channel.
type Reply struct {
	Channel string
	ChatID  string
	Content string
}
