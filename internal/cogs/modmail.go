package cogs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/chillcorner/chillbot/internal/database"
	"github.com/chillcorner/chillbot/internal/models"
)

const ticketEmbedColor = 0x5865F2

// TicketStore is the store surface the modmail cog needs.
type TicketStore interface {
	UpsertTicket(ctx context.Context, ticket *models.Ticket) error
	ListTickets(ctx context.Context) ([]*models.Ticket, error)
	DeleteTicketsByMemberIDs(ctx context.Context, memberIDs []string) error
	DeleteAllTickets(ctx context.Context) error
}

// TicketCache maps members to their open ticket channel. It is the
// working copy; the store exists so open tickets survive a restart.
type TicketCache struct {
	mu       sync.RWMutex
	byMember map[string]string
}

// NewTicketCache creates an empty ticket cache.
func NewTicketCache() *TicketCache {
	return &TicketCache{byMember: make(map[string]string)}
}

// Add records a member's ticket channel.
func (tc *TicketCache) Add(memberID, channelID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.byMember[memberID] = channelID
}

// Get returns the member's ticket channel, if any.
func (tc *TicketCache) Get(memberID string) (string, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	channelID, ok := tc.byMember[memberID]
	return channelID, ok
}

// RemoveMany evicts the given members.
func (tc *TicketCache) RemoveMany(memberIDs []string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for _, memberID := range memberIDs {
		delete(tc.byMember, memberID)
	}
}

// MembersByChannel returns every member attached to a ticket channel.
func (tc *TicketCache) MembersByChannel(channelID string) []string {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	var members []string
	for memberID, ch := range tc.byMember {
		if ch == channelID {
			members = append(members, memberID)
		}
	}
	return members
}

// Clear evicts every ticket and returns how many were open.
func (tc *TicketCache) Clear() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	n := len(tc.byMember)
	tc.byMember = make(map[string]string)
	return n
}

// Len reports the number of open tickets.
func (tc *TicketCache) Len() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.byMember)
}

// Modmail owns ticket channels: opening one per member under the
// reports category and closing it on request.
type Modmail struct {
	session Session
	store   TicketStore
	cache   *TicketCache
	logger  *zap.Logger

	guildID           string
	reportsCategoryID string
	isModerator       CheckFunc
}

// NewModmail creates the modmail cog.
func NewModmail(session Session, store TicketStore, logger *zap.Logger, guildID, reportsCategoryID string, isModerator CheckFunc) *Modmail {
	return &Modmail{
		session:           session,
		store:             store,
		cache:             NewTicketCache(),
		logger:            logger,
		guildID:           guildID,
		reportsCategoryID: reportsCategoryID,
		isModerator:       isModerator,
	}
}

// Load fills the cache from the store. Called once at startup.
func (c *Modmail) Load(ctx context.Context) error {
	tickets, err := c.store.ListTickets(ctx)
	if err != nil {
		return fmt.Errorf("loading tickets: %w", err)
	}
	for _, ticket := range tickets {
		c.cache.Add(ticket.MemberID, ticket.ChannelID)
	}
	c.logger.Info("loaded open tickets", zap.Int("count", len(tickets)))
	return nil
}

// Command returns the "ticket" command for the router. Opening is
// moderator-gated; closing is allowed to the ticket's member too, so the
// gate lives inside the subcommands.
func (c *Modmail) Command() *Command {
	return &Command{
		Name: "ticket",
		Help: "Modmail tickets: ticket open @member..., ticket close, ticket reset",
		Run: func(cmdCtx *Context) error {
			if len(cmdCtx.Args) == 0 {
				return Validationf("Usage: ticket <open|close|reset> ...")
			}
			switch strings.ToLower(cmdCtx.Args[0]) {
			case "open":
				return c.runOpen(cmdCtx)
			case "close":
				return c.runClose(cmdCtx)
			case "reset":
				return c.runReset(cmdCtx)
			default:
				return Validationf("Unknown subcommand %q.", cmdCtx.Args[0])
			}
		},
	}
}

func (c *Modmail) runOpen(cmdCtx *Context) error {
	if !c.isModerator(cmdCtx.Message) {
		return ErrPermissionDenied
	}

	members := cmdCtx.Message.Mentions
	if len(members) == 0 {
		return Validationf("Usage: ticket open @member...")
	}

	for _, member := range members {
		if _, open := c.cache.Get(member.ID); open {
			return Validationf("%s already has an open ticket.", member.Username)
		}
	}

	main := members[0]
	channel, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:     fmt.Sprintf("ticket-%s", strings.ToLower(main.Username)),
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: c.reportsCategoryID,
	})
	if err != nil {
		return fmt.Errorf("creating ticket channel: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	for _, member := range members {
		c.cache.Add(member.ID, channel.ID)
		ticket := &models.Ticket{
			MemberID:  member.ID,
			ChannelID: channel.ID,
			OpenedBy:  sql.NullString{String: cmdCtx.Message.Author.ID, Valid: true},
		}
		if err := c.store.UpsertTicket(ctx, ticket); err != nil {
			c.logger.Error("failed to persist ticket",
				zap.String("member_id", member.ID),
				zap.String("channel_id", channel.ID),
				zap.Error(err),
			)
		}
	}

	c.sendTicketHeader(channel.ID, members)

	return cmdCtx.Reply(fmt.Sprintf("Opened ticket <#%s>.", channel.ID))
}

func (c *Modmail) runClose(cmdCtx *Context) error {
	channelID := cmdCtx.Message.ChannelID
	members := c.cache.MembersByChannel(channelID)
	if len(members) == 0 {
		return Validationf("This is not a ticket channel.")
	}

	allowed := c.isModerator(cmdCtx.Message)
	if !allowed {
		for _, memberID := range members {
			if memberID == cmdCtx.Message.Author.ID {
				allowed = true
				break
			}
		}
	}
	if !allowed {
		return ErrPermissionDenied
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := c.store.DeleteTicketsByMemberIDs(ctx, members); err != nil {
		c.logger.Error("failed to delete ticket records", zap.Error(err))
	}
	c.cache.RemoveMany(members)

	if _, err := c.session.ChannelDelete(channelID); err != nil {
		return fmt.Errorf("deleting ticket channel: %w", err)
	}

	return nil
}

// runReset drops every ticket record and empties the cache. Channels are
// left in place for the moderators to clean up by hand.
func (c *Modmail) runReset(cmdCtx *Context) error {
	if !c.isModerator(cmdCtx.Message) {
		return ErrPermissionDenied
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := c.store.DeleteAllTickets(ctx); err != nil {
		return fmt.Errorf("resetting tickets: %w", err)
	}
	count := c.cache.Clear()

	c.logger.Info("reset ticket state", zap.Int("count", count))

	return cmdCtx.Reply(fmt.Sprintf("Forgot %d open ticket(s).", count))
}

// sendTicketHeader posts the opening summary in a fresh ticket channel.
func (c *Modmail) sendTicketHeader(channelID string, members []*discordgo.User) {
	mentions := make([]string, 0, len(members))
	for _, member := range members {
		mentions = append(mentions, member.Mention())
	}

	embed := &discordgo.MessageEmbed{
		Color: ticketEmbedColor,
		Author: &discordgo.MessageEmbedAuthor{
			Name: fmt.Sprintf("New ticket from %s", members[0].Username),
		},
		Description: fmt.Sprintf("Members: %s", strings.Join(mentions, ", ")),
	}

	_, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: strings.Join(mentions, " "),
		Embed:   embed,
	})
	if err != nil {
		c.logger.Error("failed to send ticket header",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}

var _ TicketStore = (*database.DB)(nil)
