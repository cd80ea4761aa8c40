package cogs

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	verificationEmbedColor = 0xE74C3C
	verificationCodeLen    = 5
	verificationSlowmode   = 5

	verificationCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// VerificationKind selects which role a successful review grants.
type VerificationKind string

const (
	VerificationKindSelfie VerificationKind = "selfie"
	VerificationKindArt    VerificationKind = "art"
)

type pendingVerification struct {
	memberID string
	kind     VerificationKind
}

// VerificationOptions configures the verification cog.
type VerificationOptions struct {
	GuildID        string
	CategoryID     string
	ModRoleID      string
	VerifiedRoleID string
	ArtistRoleID   string
	IsModerator    CheckFunc
}

// Verification runs the member verification flow: the member gets a
// private channel with a random code to photograph alongside their
// selfie or artwork, and a moderator approves or rejects the submission
// in that channel.
type Verification struct {
	session Session
	logger  *zap.Logger
	opts    VerificationOptions

	mu      sync.Mutex
	pending map[string]pendingVerification // channel id -> open submission

	// newCode is swapped out in tests.
	newCode func() string
}

// NewVerification creates the verification cog.
func NewVerification(session Session, logger *zap.Logger, opts VerificationOptions) *Verification {
	return &Verification{
		session: session,
		logger:  logger,
		opts:    opts,
		pending: make(map[string]pendingVerification),
		newCode: randomVerificationCode,
	}
}

func randomVerificationCode() string {
	b := make([]byte, verificationCodeLen)
	for i := range b {
		b[i] = verificationCodeAlphabet[rand.Intn(len(verificationCodeAlphabet))]
	}
	return string(b)
}

// Command returns the "verify" command for the router. Starting a
// submission is open to everyone; reviewing is moderator-only, so the
// gate lives inside the subcommands.
func (c *Verification) Command() *Command {
	return &Command{
		Name: "verify",
		Help: "Verification: verify <selfie|art>; moderators: verify approve|reject",
		Run: func(cmdCtx *Context) error {
			if len(cmdCtx.Args) == 0 {
				return Validationf("Usage: verify <selfie|art>")
			}
			switch strings.ToLower(cmdCtx.Args[0]) {
			case string(VerificationKindSelfie):
				return c.runStart(cmdCtx, VerificationKindSelfie)
			case string(VerificationKindArt):
				return c.runStart(cmdCtx, VerificationKindArt)
			case "approve":
				return c.runReview(cmdCtx, true)
			case "reject":
				return c.runReview(cmdCtx, false)
			default:
				return Validationf("Unknown subcommand %q.", cmdCtx.Args[0])
			}
		},
	}
}

func (c *Verification) roleFor(kind VerificationKind) string {
	if kind == VerificationKindArt {
		return c.opts.ArtistRoleID
	}
	return c.opts.VerifiedRoleID
}

func (c *Verification) runStart(cmdCtx *Context, kind VerificationKind) error {
	m := cmdCtx.Message
	roleID := c.roleFor(kind)

	if m.Member != nil {
		for _, held := range m.Member.Roles {
			if held == roleID {
				return Validationf("You already have the %s role.", kind)
			}
		}
	}

	c.mu.Lock()
	for channelID, p := range c.pending {
		if p.memberID == m.Author.ID {
			c.mu.Unlock()
			return Validationf("You already have a verification open in <#%s>.", channelID)
		}
	}
	c.mu.Unlock()

	code := c.newCode()

	channel, err := c.session.GuildChannelCreateComplex(c.opts.GuildID, discordgo.GuildChannelCreateData{
		Name:             fmt.Sprintf("%s-%s-%s", kind, strings.ToLower(m.Author.Username), strings.ToLower(code)),
		Type:             discordgo.ChannelTypeGuildText,
		Topic:            fmt.Sprintf("%s verification for %s", kind, m.Author.Username),
		ParentID:         c.opts.CategoryID,
		RateLimitPerUser: verificationSlowmode,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				// @everyone shares the guild id.
				ID:   c.opts.GuildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
			{
				ID:    m.Author.ID,
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionAttachFiles,
				Deny:  discordgo.PermissionAddReactions | discordgo.PermissionEmbedLinks,
			},
			{
				ID:    c.opts.ModRoleID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating verification channel: %w", err)
	}

	c.mu.Lock()
	c.pending[channel.ID] = pendingVerification{memberID: m.Author.ID, kind: kind}
	c.mu.Unlock()

	c.logger.Info("opened verification channel",
		zap.String("member_id", m.Author.ID),
		zap.String("channel_id", channel.ID),
		zap.String("kind", string(kind)),
	)

	c.sendInstructions(channel.ID, m.Author, kind, code)

	return cmdCtx.Reply(fmt.Sprintf("Follow the steps in <#%s>.", channel.ID))
}

func (c *Verification) runReview(cmdCtx *Context, approved bool) error {
	if !c.opts.IsModerator(cmdCtx.Message) {
		return ErrPermissionDenied
	}

	channelID := cmdCtx.Message.ChannelID
	c.mu.Lock()
	submission, ok := c.pending[channelID]
	if ok {
		delete(c.pending, channelID)
	}
	c.mu.Unlock()
	if !ok {
		return Validationf("This is not a verification channel.")
	}

	if approved {
		roleID := c.roleFor(submission.kind)
		if err := c.session.GuildMemberRoleAdd(c.opts.GuildID, submission.memberID, roleID); err != nil {
			// Put the submission back so the review can be retried.
			c.mu.Lock()
			c.pending[channelID] = submission
			c.mu.Unlock()
			return fmt.Errorf("granting verification role: %w", err)
		}
	}

	if _, err := c.session.ChannelDelete(channelID); err != nil {
		return fmt.Errorf("deleting verification channel: %w", err)
	}

	c.logger.Info("closed verification",
		zap.String("member_id", submission.memberID),
		zap.String("kind", string(submission.kind)),
		zap.Bool("approved", approved),
	)

	c.notifyMember(submission.memberID, approved)
	return nil
}

// sendInstructions posts the verification steps in a fresh channel.
func (c *Verification) sendInstructions(channelID string, member *discordgo.User, kind VerificationKind, code string) {
	embed := &discordgo.MessageEmbed{
		Color: verificationEmbedColor,
		Author: &discordgo.MessageEmbedAuthor{
			Name: "Follow these verification steps:",
		},
		Description: verificationSteps(kind),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Verification Code", Value: code},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Your picture is deleted together with this channel once it has been reviewed.",
		},
	}

	_, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: member.Mention(),
		Embed:   embed,
	})
	if err != nil {
		c.logger.Error("failed to send verification instructions",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}

func verificationSteps(kind VerificationKind) string {
	if kind == VerificationKindArt {
		return "1. Pick an artwork of yours.\n" +
			"2. Write the code above on a note next to it, or on a separate layer for digital art.\n" +
			"3. Take a picture with the code clearly visible.\n" +
			"4. Upload the picture in this channel.\n" +
			"5. Wait for a moderator to review it."
	}
	return "1. Write the code above on a piece of paper.\n" +
		"2. Take a selfie holding the paper.\n" +
		"3. Upload the selfie in this channel.\n" +
		"4. Wait for a moderator to review it."
}

func (c *Verification) notifyMember(memberID string, approved bool) {
	dm, err := c.session.UserChannelCreate(memberID)
	if err != nil {
		c.logger.Debug("failed to open verification DM", zap.Error(err))
		return
	}
	notice := "We couldn't verify your submission."
	if approved {
		notice = "We have verified your submission!"
	}
	if _, err := c.session.ChannelMessageSend(dm.ID, notice); err != nil {
		c.logger.Debug("failed to send verification DM", zap.Error(err))
	}
}
