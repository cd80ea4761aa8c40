package database

import "errors"

// Sentinel errors surfaced by the query layer. Callers branch on these
// with errors.Is to decide what the user sees.
var (
	ErrSnippetNotFound = errors.New("snippet not found")
	ErrSnippetExists   = errors.New("snippet already exists")
	ErrRoleNotFound    = errors.New("custom role not found")
	ErrRoleExists      = errors.New("custom role already exists")
)
