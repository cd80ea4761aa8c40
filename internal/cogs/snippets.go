package cogs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/chillcorner/chillbot/internal/database"
	"github.com/chillcorner/chillbot/internal/models"
	"github.com/chillcorner/chillbot/internal/ratelimit"
)

const (
	snippetEmbedColor  = 0xE74C3C
	maxSnippetNameLen  = 50
	snippetListLimit   = 15
	cooldownNoticeLife = 5 * time.Second
)

var (
	// userMentionPattern matches user-mention tokens inside a trigger.
	userMentionPattern = regexp.MustCompile(`<@!?[0-9]+>`)

	// imageURLPattern decides at creation time whether content renders
	// as an embed image or as plain text.
	imageURLPattern = regexp.MustCompile(`(?i)^https?://\S+\.(?:jpg|jpeg|gif|png|svg)$`)
)

// SnippetStore is the store surface the snippets cog needs.
type SnippetStore interface {
	CreateSnippet(ctx context.Context, snippet *models.Snippet) error
	GetSnippetByName(ctx context.Context, name string) (*models.Snippet, error)
	IncrementSnippetUses(ctx context.Context, id int64) error
	UpdateSnippet(ctx context.Context, name string, update database.SnippetUpdate) error
	SetSnippetApproved(ctx context.Context, name string, approved bool) error
	DeleteSnippet(ctx context.Context, name string) error
	ListSnippets(ctx context.Context, limit int) ([]*models.Snippet, error)
}

// Snippets resolves snippet triggers and owns the snippet management
// commands.
type Snippets struct {
	session Session
	store   SnippetStore
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	prefix  string
	guildID string
}

// NewSnippets creates the snippets cog. The limiter is keyed by channel
// id when resolving triggers.
func NewSnippets(session Session, store SnippetStore, limiter *ratelimit.Limiter, logger *zap.Logger, prefix, guildID string) *Snippets {
	return &Snippets{
		session: session,
		store:   store,
		limiter: limiter,
		logger:  logger,
		prefix:  prefix,
		guildID: guildID,
	}
}

// OnMessageCreate resolves a snippet trigger such as ";welcome".
func (c *Snippets) OnMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID != c.guildID {
		return
	}
	if !strings.HasPrefix(m.Content, c.prefix) {
		return
	}

	trigger := strings.TrimSpace(m.Content[len(c.prefix):])
	if trigger == "" {
		return
	}

	name := strings.TrimSpace(userMentionPattern.ReplaceAllString(trigger, ""))
	if name == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	snippet, err := c.store.GetSnippetByName(ctx, name)
	if errors.Is(err, database.ErrSnippetNotFound) {
		c.send(m.ChannelID, fmt.Sprintf("No snippet named %q.", name))
		return
	}
	if err != nil {
		c.logger.Error("snippet lookup failed", zap.String("name", name), zap.Error(err))
		c.send(m.ChannelID, "Something went wrong looking that up.")
		return
	}

	if allowed, retryAfter := c.limiter.Check(m.ChannelID); !allowed {
		c.denyOnCooldown(m, retryAfter)
		return
	}

	if !snippet.Approved {
		c.send(m.ChannelID, "This snippet is not approved yet.")
		return
	}

	send := &discordgo.MessageSend{
		Embed:     buildSnippetEmbed(snippet),
		Reference: m.Reference(),
	}
	// Mentions stripped from the trigger still ride along as content so
	// the mentioned users get notified.
	if mentions := mentionPrefix(m.Mentions); mentions != "" {
		send.Content = mentions
	}

	if _, err := c.session.ChannelMessageSendComplex(m.ChannelID, send); err != nil {
		c.logger.Error("failed to send snippet",
			zap.String("name", snippet.Name),
			zap.String("channel_id", m.ChannelID),
			zap.Error(err),
		)
		return
	}

	// The outbound send may have consumed most of the lookup context's
	// budget; the counter write gets its own.
	incCtx, incCancel := context.WithTimeout(context.Background(), storeTimeout)
	defer incCancel()

	if err := c.store.IncrementSnippetUses(incCtx, snippet.ID); err != nil {
		c.logger.Error("failed to count snippet use", zap.String("name", snippet.Name), zap.Error(err))
	}
}

// denyOnCooldown deletes the offending trigger and posts a short-lived
// wait notice.
func (c *Snippets) denyOnCooldown(m *discordgo.MessageCreate, retryAfter time.Duration) {
	if err := c.session.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		c.logger.Debug("failed to delete trigger on cooldown", zap.Error(err))
	}

	notice := fmt.Sprintf("This channel is on cooldown. Try again in %.1fs %s",
		retryAfter.Seconds(), m.Author.Mention())
	sent, err := c.session.ChannelMessageSend(m.ChannelID, notice)
	if err != nil {
		c.logger.Debug("failed to send cooldown notice", zap.Error(err))
		return
	}

	channelID, messageID := m.ChannelID, sent.ID
	time.AfterFunc(cooldownNoticeLife, func() {
		if err := c.session.ChannelMessageDelete(channelID, messageID); err != nil {
			c.logger.Debug("failed to expire cooldown notice", zap.Error(err))
		}
	})
}

func (c *Snippets) send(channelID, content string) {
	if _, err := c.session.ChannelMessageSend(channelID, content); err != nil {
		c.logger.Debug("failed to send snippet reply", zap.Error(err))
	}
}

// buildSnippetEmbed renders a snippet as an embed. Link snippets become
// the embed image with an optional title; text snippets fill title and
// body, the title falling back to the snippet name.
func buildSnippetEmbed(snippet *models.Snippet) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Color: snippetEmbedColor}

	if snippet.Kind == models.SnippetKindLink {
		embed.Image = &discordgo.MessageEmbedImage{URL: snippet.Content}
		if snippet.Title.Valid && snippet.Title.String != "" {
			embed.Title = snippet.Title.String
		}
	} else {
		embed.Title = snippet.DisplayTitle()
		embed.Description = snippet.Content
	}

	if snippet.Footer.Valid && snippet.Footer.String != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: snippet.Footer.String}
	}

	return embed
}

func mentionPrefix(users []*discordgo.User) string {
	mentions := make([]string, 0, len(users))
	for _, u := range users {
		mentions = append(mentions, u.Mention())
	}
	return strings.Join(mentions, " ")
}

// Command returns the "snippet" management command for the router.
// Mutating subcommands are moderator-gated.
func (c *Snippets) Command(isModerator CheckFunc, cooldown *ratelimit.Limiter) *Command {
	return &Command{
		Name:     "snippet",
		Help:     "Manage snippets: add, del, approve, unapprove, edit, info, list",
		Cooldown: cooldown,
		Run: func(cmdCtx *Context) error {
			if len(cmdCtx.Args) == 0 {
				return Validationf("Usage: snippet <add|del|approve|unapprove|edit|info|list> ...")
			}

			sub := strings.ToLower(cmdCtx.Args[0])
			switch sub {
			case "info":
				return c.runInfo(cmdCtx)
			case "list":
				return c.runList(cmdCtx)
			}

			if !isModerator(cmdCtx.Message) {
				return ErrPermissionDenied
			}

			switch sub {
			case "add":
				return c.runAdd(cmdCtx)
			case "del":
				return c.runDelete(cmdCtx)
			case "approve":
				return c.runApprove(cmdCtx, true)
			case "unapprove":
				return c.runApprove(cmdCtx, false)
			case "edit":
				return c.runEdit(cmdCtx)
			default:
				return Validationf("Unknown subcommand %q.", sub)
			}
		},
	}
}

func (c *Snippets) runAdd(cmdCtx *Context) error {
	if len(cmdCtx.Args) < 3 {
		return Validationf("Usage: snippet add <name> <content>")
	}

	name := cmdCtx.Args[1]
	content := cmdCtx.RestArgs(2)

	if len(name) > maxSnippetNameLen {
		return Validationf("Snippet names must be at most %d characters.", maxSnippetNameLen)
	}
	if content == "" {
		return Validationf("Snippet content must not be empty.")
	}

	kind := models.SnippetKindText
	if imageURLPattern.MatchString(content) {
		kind = models.SnippetKindLink
	}

	snippet := &models.Snippet{
		Name:    name,
		Kind:    kind,
		Content: content,
		OwnerID: cmdCtx.Message.Author.ID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := c.store.CreateSnippet(ctx, snippet)
	if errors.Is(err, database.ErrSnippetExists) {
		return Validationf("A snippet named %q already exists.", name)
	}
	if err != nil {
		return fmt.Errorf("creating snippet %q: %w", name, err)
	}

	return cmdCtx.Reply(fmt.Sprintf("Added snippet %q. It needs approval before it can be used.", name))
}

func (c *Snippets) runDelete(cmdCtx *Context) error {
	if len(cmdCtx.Args) < 2 {
		return Validationf("Usage: snippet del <name>")
	}
	name := cmdCtx.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := c.store.DeleteSnippet(ctx, name)
	if errors.Is(err, database.ErrSnippetNotFound) {
		return Validationf("No snippet named %q.", name)
	}
	if err != nil {
		return fmt.Errorf("deleting snippet %q: %w", name, err)
	}

	return cmdCtx.Reply(fmt.Sprintf("Deleted snippet %q.", name))
}

func (c *Snippets) runApprove(cmdCtx *Context, approved bool) error {
	if len(cmdCtx.Args) < 2 {
		return Validationf("Usage: snippet %s <name>", cmdCtx.Args[0])
	}
	name := cmdCtx.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := c.store.SetSnippetApproved(ctx, name, approved)
	if errors.Is(err, database.ErrSnippetNotFound) {
		return Validationf("No snippet named %q.", name)
	}
	if err != nil {
		return fmt.Errorf("updating approval of snippet %q: %w", name, err)
	}

	state := "approved"
	if !approved {
		state = "unapproved"
	}
	return cmdCtx.Reply(fmt.Sprintf("Snippet %q is now %s.", name, state))
}

func (c *Snippets) runEdit(cmdCtx *Context) error {
	if len(cmdCtx.Args) < 4 {
		return Validationf("Usage: snippet edit <name> <title|content|footer> <value>")
	}

	name := cmdCtx.Args[1]
	field := strings.ToLower(cmdCtx.Args[2])
	value := cmdCtx.RestArgs(3)

	var update database.SnippetUpdate
	switch field {
	case "title":
		update.Title = &value
	case "content":
		if value == "" {
			return Validationf("Snippet content must not be empty.")
		}
		update.Content = &value
	case "footer":
		update.Footer = &value
	default:
		return Validationf("Unknown field %q. Choose title, content or footer.", field)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := c.store.UpdateSnippet(ctx, name, update)
	if errors.Is(err, database.ErrSnippetNotFound) {
		return Validationf("No snippet named %q.", name)
	}
	if err != nil {
		return fmt.Errorf("editing snippet %q: %w", name, err)
	}

	return cmdCtx.Reply(fmt.Sprintf("Updated %s of snippet %q.", field, name))
}

func (c *Snippets) runInfo(cmdCtx *Context) error {
	if len(cmdCtx.Args) < 2 {
		return Validationf("Usage: snippet info <name>")
	}
	name := cmdCtx.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	snippet, err := c.store.GetSnippetByName(ctx, name)
	if errors.Is(err, database.ErrSnippetNotFound) {
		return Validationf("No snippet named %q.", name)
	}
	if err != nil {
		return fmt.Errorf("looking up snippet %q: %w", name, err)
	}

	embed := &discordgo.MessageEmbed{
		Title: snippet.Name,
		Color: snippetEmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Owner", Value: fmt.Sprintf("<@%s>", snippet.OwnerID), Inline: true},
			{Name: "Uses", Value: fmt.Sprintf("%d", snippet.Uses), Inline: true},
			{Name: "Approved", Value: fmt.Sprintf("%t", snippet.Approved), Inline: true},
			{Name: "Kind", Value: string(snippet.Kind), Inline: true},
			{Name: "Created", Value: snippet.CreatedAt.Format("2 January 2006"), Inline: true},
		},
	}
	return cmdCtx.ReplyEmbed(embed)
}

func (c *Snippets) runList(cmdCtx *Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	snippets, err := c.store.ListSnippets(ctx, snippetListLimit)
	if err != nil {
		return fmt.Errorf("listing snippets: %w", err)
	}
	if len(snippets) == 0 {
		return cmdCtx.Reply("No snippets yet.")
	}

	var b strings.Builder
	for i, snippet := range snippets {
		approval := ""
		if !snippet.Approved {
			approval = " (unapproved)"
		}
		fmt.Fprintf(&b, "%d. %s - %d uses%s\n", i+1, snippet.Name, snippet.Uses, approval)
	}

	return cmdCtx.ReplyEmbed(&discordgo.MessageEmbed{
		Title:       "Snippets",
		Description: b.String(),
		Color:       snippetEmbedColor,
	})
}

var _ SnippetStore = (*database.DB)(nil)
