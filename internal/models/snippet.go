package models

import (
	"database/sql"
	"time"
)

// SnippetKind tells the renderer how to treat a snippet's content.
type SnippetKind string

const (
	// SnippetKindText renders content as the embed body.
	SnippetKindText SnippetKind = "text"
	// SnippetKindLink renders content as the embed image.
	SnippetKindLink SnippetKind = "link"
)

// Snippet is a named reply template invocable with the snippet prefix.
// Names are unique case-insensitively. Uses only ever grows, by one per
// successful approved render.
type Snippet struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Kind      SnippetKind    `json:"kind"`
	Content   string         `json:"content"`
	Title     sql.NullString `json:"title"`
	Footer    sql.NullString `json:"footer"`
	Approved  bool           `json:"approved"`
	OwnerID   string         `json:"owner_id"`
	Uses      int64          `json:"uses"`
	CreatedAt time.Time      `json:"created_at"`
}

// DisplayTitle returns the embed title, falling back to the snippet name
// when no explicit title is stored.
func (s *Snippet) DisplayTitle() string {
	if s.Title.Valid && s.Title.String != "" {
		return s.Title.String
	}
	return s.Name
}

// ApplyDefaults normalizes a row read from the store: an unset kind is
// treated as text so rows predating the kind column still render.
func (s *Snippet) ApplyDefaults() {
	if s.Kind != SnippetKindText && s.Kind != SnippetKindLink {
		s.Kind = SnippetKindText
	}
}
