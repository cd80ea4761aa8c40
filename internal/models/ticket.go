package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Ticket maps a member to their open modmail channel. The in-memory
// ticket cache is the source of truth while the bot runs; rows exist so
// open tickets survive a restart.
type Ticket struct {
	ID        uuid.UUID      `json:"id"`
	MemberID  string         `json:"member_id"`
	ChannelID string         `json:"channel_id"`
	OpenedBy  sql.NullString `json:"opened_by"`
	CreatedAt time.Time      `json:"created_at"`
}
