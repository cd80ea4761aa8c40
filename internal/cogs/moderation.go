package cogs

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	minTimeout = 5 * time.Minute
	maxTimeout = 28 * 24 * time.Hour
)

// Moderation enforces media-only channels and owns the timeout commands.
type Moderation struct {
	session Session
	logger  *zap.Logger

	guildID         string
	mediaChannelIDs map[string]bool
}

// NewModeration creates the moderation cog.
func NewModeration(session Session, logger *zap.Logger, guildID string, mediaChannelIDs []string) *Moderation {
	media := make(map[string]bool, len(mediaChannelIDs))
	for _, id := range mediaChannelIDs {
		media[id] = true
	}
	return &Moderation{
		session:         session,
		logger:          logger,
		guildID:         guildID,
		mediaChannelIDs: media,
	}
}

// OnMessageCreate keeps media-only channels on topic: attachment posts
// get a comment thread, chatter is removed with a courtesy DM.
func (c *Moderation) OnMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID != c.guildID {
		return
	}
	if !c.mediaChannelIDs[m.ChannelID] {
		return
	}

	if len(m.Attachments) > 0 {
		name := fmt.Sprintf("💬 %s's post comments", m.Author.Username)
		_, err := c.session.MessageThreadStartComplex(m.ChannelID, m.ID, &discordgo.ThreadStart{
			Name:                name,
			AutoArchiveDuration: 1440,
		})
		if err != nil {
			c.logger.Warn("failed to start comment thread", zap.Error(err))
		}
		return
	}

	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		return
	}

	if err := c.session.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		c.logger.Debug("failed to delete non-media message", zap.Error(err))
		return
	}

	// A closed-DM failure here is not worth anyone's attention.
	if dm, err := c.session.UserChannelCreate(m.Author.ID); err == nil {
		_, _ = c.session.ChannelMessageSend(dm.ID,
			"Please use the post's comment thread instead of replying directly in a media channel.")
	}
}

// TimeoutCommand returns the moderator "timeout" command.
func (c *Moderation) TimeoutCommand(isModerator CheckFunc) *Command {
	return &Command{
		Name:    "timeout",
		Aliases: []string{"t"},
		Help:    "Timeout members: timeout @member... <duration> <reason>",
		Check:   isModerator,
		Run: func(cmdCtx *Context) error {
			if len(cmdCtx.Message.Mentions) == 0 {
				return Validationf("Usage: timeout @member... <duration> <reason>")
			}

			duration, reason, err := parseTimeoutArgs(cmdCtx.Args)
			if err != nil {
				return err
			}
			if reason == "" {
				return Validationf("A reason is required.")
			}

			until := time.Now().Add(duration)
			timedOut := 0
			for _, member := range cmdCtx.Message.Mentions {
				if err := c.session.GuildMemberTimeout(c.guildID, member.ID, &until); err != nil {
					c.logger.Warn("failed to timeout member",
						zap.String("user_id", member.ID),
						zap.Error(err),
					)
					continue
				}
				timedOut++
			}

			return cmdCtx.Reply(fmt.Sprintf("Timed out %d member(s) for %s.", timedOut, duration))
		},
	}
}

// SelfTimeoutCommand returns the "selftimeout" command, open to anyone.
func (c *Moderation) SelfTimeoutCommand() *Command {
	return &Command{
		Name:    "selftimeout",
		Aliases: []string{"st"},
		Help:    "Timeout yourself: selftimeout <duration> [reason]",
		Run: func(cmdCtx *Context) error {
			duration, _, err := parseTimeoutArgs(cmdCtx.Args)
			if err != nil {
				return err
			}

			until := time.Now().Add(duration)
			if err := c.session.GuildMemberTimeout(c.guildID, cmdCtx.Message.Author.ID, &until); err != nil {
				return fmt.Errorf("applying self-timeout: %w", err)
			}

			return cmdCtx.Reply(fmt.Sprintf("See you in %s.", duration))
		},
	}
}

// parseTimeoutArgs extracts the duration and trailing reason from command
// arguments, skipping mention tokens.
func parseTimeoutArgs(args []string) (time.Duration, string, error) {
	for i, arg := range args {
		if userMentionPattern.MatchString(arg) {
			continue
		}

		duration, err := time.ParseDuration(arg)
		if err != nil {
			return 0, "", Validationf("Invalid duration %q. Use forms like 30m, 2h or 24h.", arg)
		}
		if duration < minTimeout {
			return 0, "", Validationf("Timeouts must be at least 5 minutes.")
		}
		if duration > maxTimeout {
			return 0, "", Validationf("Timeouts can last at most 28 days.")
		}

		return duration, strings.Join(args[i+1:], " "), nil
	}

	return 0, "", Validationf("A duration is required, e.g. 30m or 2h.")
}
