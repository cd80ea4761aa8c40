package cogs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/chillcorner/chillbot/internal/ratelimit"
)

// CheckFunc is a command permission predicate evaluated before the
// handler runs.
type CheckFunc func(m *discordgo.MessageCreate) bool

// HandlerFunc executes a command. A returned ValidationError is shown to
// the user; any other error is logged and acknowledged generically.
type HandlerFunc func(cmdCtx *Context) error

// Context carries one command invocation.
type Context struct {
	Session Session
	Message *discordgo.MessageCreate
	Args    []string
}

// Reply sends content to the invoking channel.
func (c *Context) Reply(content string) error {
	_, err := c.Session.ChannelMessageSend(c.Message.ChannelID, content)
	return err
}

// ReplyEmbed sends an embed to the invoking channel, referencing the
// invoking message.
func (c *Context) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	_, err := c.Session.ChannelMessageSendComplex(c.Message.ChannelID, &discordgo.MessageSend{
		Embed:     embed,
		Reference: c.Message.Reference(),
	})
	return err
}

// RestArgs joins the arguments from index i onward into one free-text
// parameter.
func (c *Context) RestArgs(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// Command is one prefix-triggered command.
type Command struct {
	Name    string
	Aliases []string
	Help    string

	// Check gates execution; nil means anyone may run the command.
	Check CheckFunc

	// Cooldown, if set, is consulted per invoking user.
	Cooldown *ratelimit.Limiter

	Run HandlerFunc
}

// Router dispatches prefix commands. Unknown commands are ignored so the
// prefix stays usable for chatter.
type Router struct {
	session  Session
	logger   *zap.Logger
	prefix   string
	guildID  string
	commands map[string]*Command
}

// NewRouter creates an empty command router.
func NewRouter(session Session, logger *zap.Logger, prefix, guildID string) *Router {
	return &Router{
		session:  session,
		logger:   logger,
		prefix:   prefix,
		guildID:  guildID,
		commands: make(map[string]*Command),
	}
}

// Register adds a command and its aliases. Names are matched
// case-insensitively.
func (r *Router) Register(cmd *Command) {
	r.commands[strings.ToLower(cmd.Name)] = cmd
	for _, alias := range cmd.Aliases {
		r.commands[strings.ToLower(alias)] = cmd
	}
}

// OnMessageCreate dispatches a gateway message to a registered command.
func (r *Router) OnMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID != r.guildID {
		return
	}
	if !strings.HasPrefix(m.Content, r.prefix) {
		return
	}

	fields := strings.Fields(m.Content[len(r.prefix):])
	if len(fields) == 0 {
		return
	}

	cmd, ok := r.commands[strings.ToLower(fields[0])]
	if !ok {
		return
	}

	if cmd.Check != nil && !cmd.Check(m) {
		r.reply(m, "You don't have permission to use this command.")
		return
	}

	if cmd.Cooldown != nil {
		if allowed, retryAfter := cmd.Cooldown.Check(m.Author.ID); !allowed {
			r.reply(m, fmt.Sprintf("You are on cooldown. Try again in %.1fs.", retryAfter.Seconds()))
			return
		}
	}

	r.run(cmd, m, fields[1:])
}

// run executes the command, recovering panics so one bad handler never
// takes the process down.
func (r *Router) run(cmd *Command, m *discordgo.MessageCreate, args []string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command handler panicked",
				zap.String("command", cmd.Name),
				zap.String("user_id", m.Author.ID),
				zap.Any("panic", rec),
			)
			r.reply(m, "Something went wrong running that command.")
		}
	}()

	err := cmd.Run(&Context{
		Session: r.session,
		Message: m,
		Args:    args,
	})
	if err == nil {
		return
	}

	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		r.reply(m, validationErr.Error())
	case errors.Is(err, ErrPermissionDenied):
		r.reply(m, "You don't have permission to use this command.")
	default:
		r.logger.Error("command failed",
			zap.String("command", cmd.Name),
			zap.String("user_id", m.Author.ID),
			zap.Error(err),
		)
		r.reply(m, "Something went wrong running that command.")
	}
}

func (r *Router) reply(m *discordgo.MessageCreate, content string) {
	if _, err := r.session.ChannelMessageSend(m.ChannelID, content); err != nil {
		r.logger.Debug("failed to send command reply", zap.Error(err))
	}
}

// IsModerator returns a check passing for members holding the moderator
// role.
func IsModerator(modRoleID string) CheckFunc {
	return func(m *discordgo.MessageCreate) bool {
		if m.Member == nil {
			return false
		}
		for _, roleID := range m.Member.Roles {
			if roleID == modRoleID {
				return true
			}
		}
		return false
	}
}

// IsOwner returns a check passing only for the bot owner.
func IsOwner(ownerID string) CheckFunc {
	return func(m *discordgo.MessageCreate) bool {
		return ownerID != "" && m.Author.ID == ownerID
	}
}
