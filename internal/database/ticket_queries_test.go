package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chillcorner/chillbot/internal/models"
)

func generateTicket(memberID, channelID string) *models.Ticket {
	return &models.Ticket{
		MemberID:  memberID,
		ChannelID: channelID,
		OpenedBy:  sql.NullString{String: "mod-1", Valid: true},
	}
}

func TestUpsertTicket_AssignsID(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	ticket := generateTicket("member-1", "channel-1")

	err = db.UpsertTicket(ctx, ticket)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, ticket.ID)
	assert.NotZero(t, ticket.CreatedAt)
}

func TestUpsertTicket_ReplacesChannelForMember(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-1", "channel-old")))
	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-1", "channel-new")))

	tickets, err := db.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1, "one open ticket per member")
	assert.Equal(t, "channel-new", tickets[0].ChannelID)
}

func TestListTickets_OldestFirst(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-1", "channel-1")))
	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-2", "channel-2")))

	tickets, err := db.ListTickets(ctx)

	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "member-1", tickets[0].MemberID)
	assert.Equal(t, "member-2", tickets[1].MemberID)
}

func TestDeleteTicketsByMemberIDs(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-1", "shared-channel")))
	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-2", "shared-channel")))
	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-3", "other-channel")))

	err = db.DeleteTicketsByMemberIDs(ctx, []string{"member-1", "member-2", "unknown"})
	require.NoError(t, err)

	tickets, err := db.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "member-3", tickets[0].MemberID)
}

func TestDeleteTicketsByMemberIDs_EmptyList(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	assert.NoError(t, db.DeleteTicketsByMemberIDs(ctx, nil))
}

func TestDeleteAllTickets(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-1", "channel-1")))
	require.NoError(t, db.UpsertTicket(ctx, generateTicket("member-2", "channel-2")))

	require.NoError(t, db.DeleteAllTickets(ctx))

	tickets, err := db.ListTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}
