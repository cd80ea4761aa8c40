package models

import (
	"database/sql"
	"time"
)

// CustomRole records a member-created vanity role. At most one per user.
type CustomRole struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"user_id"`
	RoleID      string         `json:"role_id"`
	Name        string         `json:"name"`
	Color       sql.NullString `json:"color"`
	IconURL     sql.NullString `json:"icon_url"`
	Mentionable bool           `json:"mentionable"`
	CreatedAt   time.Time      `json:"created_at"`
}
