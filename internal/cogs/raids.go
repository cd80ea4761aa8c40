package cogs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Raids buffers member joins and classifies each poll window as an
// organic batch or a raid. Joins at or above the threshold get every
// buffered member banned; below it the batch gets one welcome message.
type Raids struct {
	session Session
	logger  *zap.Logger

	guildID          string
	staffChannelID   string
	welcomeChannelID string
	threshold        int
	pollInterval     time.Duration
	settleDelay      time.Duration

	// banPacer spaces out outbound ban calls so a large batch doesn't
	// slam the REST API.
	banPacer *rate.Limiter

	mu     sync.Mutex
	buffer []joinRecord

	readyOnce sync.Once
	ready     chan struct{}
}

type joinRecord struct {
	userID   string
	username string
	joinedAt time.Time
}

// RaidsOptions configures the join-burst detector.
type RaidsOptions struct {
	GuildID          string
	StaffChannelID   string
	WelcomeChannelID string
	Threshold        int
	PollInterval     time.Duration
	SettleDelay      time.Duration
	BansPerSecond    float64
}

// NewRaids creates the join-burst detector cog.
func NewRaids(session Session, logger *zap.Logger, opts RaidsOptions) *Raids {
	return &Raids{
		session:          session,
		logger:           logger,
		guildID:          opts.GuildID,
		staffChannelID:   opts.StaffChannelID,
		welcomeChannelID: opts.WelcomeChannelID,
		threshold:        opts.Threshold,
		pollInterval:     opts.PollInterval,
		settleDelay:      opts.SettleDelay,
		banPacer:         rate.NewLimiter(rate.Limit(opts.BansPerSecond), 1),
		ready:            make(chan struct{}),
	}
}

// OnReady unblocks the poll loop once the gateway connection is
// confirmed. Evaluating before that would treat a post-reconnect backlog
// of historical joins as a live burst.
func (c *Raids) OnReady(_ *discordgo.Ready) {
	c.readyOnce.Do(func() { close(c.ready) })
}

// OnGuildMemberAdd buffers a join for the next evaluation window.
func (c *Raids) OnGuildMemberAdd(m *discordgo.GuildMemberAdd) {
	if m.GuildID != c.guildID || m.User == nil {
		return
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, joinRecord{
		userID:   m.User.ID,
		username: m.User.Username,
		joinedAt: time.Now(),
	})
	c.mu.Unlock()
}

// Start runs the poll loop until the context is canceled. The first
// evaluation waits for the gateway ready signal plus a settling delay.
func (c *Raids) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-c.ready:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.settleDelay):
		}

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.evaluate(ctx)
			}
		}
	}()
}

// drain empties the buffer in one non-blocking step. Joins arriving
// while the drained batch is being processed belong to the next window.
func (c *Raids) drain() []joinRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.buffer
	c.buffer = nil
	return batch
}

// evaluate decides the fate of one window's worth of joins.
func (c *Raids) evaluate(ctx context.Context) {
	batch := c.drain()
	if len(batch) == 0 {
		return
	}

	if len(batch) < c.threshold {
		c.welcome(batch)
		return
	}

	banned := 0
	for _, join := range batch {
		if err := c.banPacer.Wait(ctx); err != nil {
			return
		}
		err := c.session.GuildBanCreateWithReason(c.guildID, join.userID, "Potential raid", 0)
		if err != nil {
			// Per-member failures are non-fatal; keep going.
			c.logger.Warn("failed to ban suspected raider",
				zap.String("user_id", join.userID),
				zap.String("username", join.username),
				zap.Error(err),
			)
			continue
		}
		banned++
	}

	c.logger.Info("join burst treated as raid",
		zap.Int("joined", len(batch)),
		zap.Int("banned", banned),
	)

	if c.staffChannelID == "" {
		return
	}
	summary := fmt.Sprintf("Potential raid detected. Banned %d accounts.", banned)
	if _, err := c.session.ChannelMessageSend(c.staffChannelID, summary); err != nil {
		c.logger.Error("failed to notify staff channel", zap.Error(err))
	}
}

// welcome greets an organic batch with a single message.
func (c *Raids) welcome(batch []joinRecord) {
	if c.welcomeChannelID == "" {
		return
	}

	mentions := make([]string, 0, len(batch))
	for _, join := range batch {
		mentions = append(mentions, fmt.Sprintf("<@%s>", join.userID))
	}

	greeting := fmt.Sprintf("Welcome %s!", strings.Join(mentions, ", "))
	if _, err := c.session.ChannelMessageSend(c.welcomeChannelID, greeting); err != nil {
		c.logger.Debug("failed to send welcome message", zap.Error(err))
	}
}
