package cogs

// Owner holds the owner-only housekeeping commands.
type Owner struct {
	shutdown func()
}

// NewOwner creates the owner cog. shutdown initiates a graceful stop of
// the whole process.
func NewOwner(shutdown func()) *Owner {
	return &Owner{shutdown: shutdown}
}

// ShutdownCommand returns the owner-only "shutdown" command.
func (c *Owner) ShutdownCommand(isOwner CheckFunc) *Command {
	return &Command{
		Name:  "shutdown",
		Help:  "Shut the bot down gracefully",
		Check: isOwner,
		Run: func(cmdCtx *Context) error {
			if err := cmdCtx.Reply("Shutting down..."); err != nil {
				return err
			}
			c.shutdown()
			return nil
		},
	}
}
