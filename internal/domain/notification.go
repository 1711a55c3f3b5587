package domain

import "time"

// FlaggedMessage is what the punishment executor receives for a message the
// moderation engine flagged.
type FlaggedMessage struct {
	ID        string
	Verdict   ModerationVerdict
	Channel   string
	Username  string
	UserID    string
	Text      string
	DecidedAt time.Time
}
