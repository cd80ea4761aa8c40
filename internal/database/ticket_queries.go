package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/chillcorner/chillbot/internal/models"
)

// UpsertTicket persists a member's open ticket, replacing any previous
// channel mapping for that member.
func (db *DB) UpsertTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}

	query := `
		INSERT INTO tickets (id, member_id, channel_id, opened_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (member_id) DO UPDATE
		SET channel_id = EXCLUDED.channel_id,
		    opened_by = EXCLUDED.opened_by
		RETURNING created_at
	`

	err := db.QueryRowContext(
		ctx,
		query,
		ticket.ID,
		ticket.MemberID,
		ticket.ChannelID,
		ticket.OpenedBy,
	).Scan(&ticket.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert ticket: %w", err)
	}

	return nil
}

// ListTickets returns every persisted open ticket, oldest first.
func (db *DB) ListTickets(ctx context.Context) ([]*models.Ticket, error) {
	query := `
		SELECT id, member_id, channel_id, opened_by, created_at
		FROM tickets
		ORDER BY created_at ASC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		err := rows.Scan(
			&ticket.ID,
			&ticket.MemberID,
			&ticket.ChannelID,
			&ticket.OpenedBy,
			&ticket.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, &ticket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}

	return tickets, nil
}

// DeleteTicketsByMemberIDs removes the tickets of the given members.
// Unknown members are ignored.
func (db *DB) DeleteTicketsByMemberIDs(ctx context.Context, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}

	_, err := db.ExecContext(
		ctx,
		`DELETE FROM tickets WHERE member_id = ANY($1)`,
		pq.Array(memberIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to delete tickets: %w", err)
	}

	return nil
}

// DeleteAllTickets clears the ticket table.
func (db *DB) DeleteAllTickets(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM tickets`); err != nil {
		return fmt.Errorf("failed to clear tickets: %w", err)
	}
	return nil
}
