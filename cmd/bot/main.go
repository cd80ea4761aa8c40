// Package main is the entry point for the chillbot Discord bot. It wires
// the store, the rate limiters and the cogs to a gateway session and runs
// until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/chillcorner/chillbot/internal/cogs"
	"github.com/chillcorner/chillbot/internal/config"
	"github.com/chillcorner/chillbot/internal/database"
	"github.com/chillcorner/chillbot/internal/ratelimit"
	"github.com/chillcorner/chillbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		// Sync errors on stdout/stderr are expected for non-syncable
		// file descriptors and can be ignored.
		_ = log.Sync()
	}()

	log.Info("starting chillbot", zap.String("guild_id", cfg.Guild.GuildID))

	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		log.Fatal("failed to create Discord session", zap.Error(err))
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildMembers |
		discordgo.IntentMessageContent

	// Cooldown buckets. The snippet limiter is keyed by channel, the
	// command limiters by user; the sweep keeps key growth bounded.
	snippetLimiter := ratelimit.New(cfg.RateLimit.SnippetMax, cfg.RateLimit.SnippetWindow, log)
	snippetLimiter.StartSweepJob(ctx, cfg.RateLimit.SweepInterval)

	commandLimiter := func() *ratelimit.Limiter {
		l := ratelimit.New(cfg.RateLimit.CommandMax, cfg.RateLimit.CommandWindow, log)
		l.StartSweepJob(ctx, cfg.RateLimit.SweepInterval)
		return l
	}

	isModerator := cogs.IsModerator(cfg.Guild.ModRoleID)
	isOwner := cogs.IsOwner(cfg.Bot.OwnerID)

	snippets := cogs.NewSnippets(session, db, snippetLimiter,
		logger.ForCog(log, "snippets"), cfg.Bot.SnippetPrefix, cfg.Guild.GuildID)

	raids := cogs.NewRaids(session, logger.ForCog(log, "raids"), cogs.RaidsOptions{
		GuildID:          cfg.Guild.GuildID,
		StaffChannelID:   cfg.Guild.StaffChannelID,
		WelcomeChannelID: cfg.Guild.WelcomeChannelID,
		Threshold:        cfg.Raid.Threshold,
		PollInterval:     cfg.Raid.PollInterval,
		SettleDelay:      cfg.Raid.SettleDelay,
		BansPerSecond:    cfg.Raid.BansPerSecond,
	})

	customRoles := cogs.NewCustomRoles(session, db,
		logger.ForCog(log, "roles"), nil, cfg.Guild.GuildID)

	modmail := cogs.NewModmail(session, db, logger.ForCog(log, "modmail"),
		cfg.Guild.GuildID, cfg.Guild.ReportsCategoryID, isModerator)
	if err := modmail.Load(ctx); err != nil {
		log.Fatal("failed to load open tickets", zap.Error(err))
	}

	moderation := cogs.NewModeration(session, logger.ForCog(log, "moderation"),
		cfg.Guild.GuildID, cfg.Guild.MediaChannelIDs)

	verification := cogs.NewVerification(session, logger.ForCog(log, "verification"),
		cogs.VerificationOptions{
			GuildID:        cfg.Guild.GuildID,
			CategoryID:     cfg.Guild.VerificationCategoryID,
			ModRoleID:      cfg.Guild.ModRoleID,
			VerifiedRoleID: cfg.Guild.VerifiedRoleID,
			ArtistRoleID:   cfg.Guild.ArtistRoleID,
			IsModerator:    isModerator,
		})

	owner := cogs.NewOwner(cancel)

	router := cogs.NewRouter(session, logger.ForCog(log, "router"),
		cfg.Bot.CommandPrefix, cfg.Guild.GuildID)
	router.Register(snippets.Command(isModerator, commandLimiter()))
	router.Register(customRoles.Command(commandLimiter()))
	router.Register(modmail.Command())
	router.Register(verification.Command())
	router.Register(moderation.TimeoutCommand(isModerator))
	router.Register(moderation.SelfTimeoutCommand())
	router.Register(owner.ShutdownCommand(isOwner))

	if cfg.OpenAI.APIKey != "" {
		completion := cogs.NewCompletion(openai.NewClient(cfg.OpenAI.APIKey),
			logger.ForCog(log, "completion"), cfg.OpenAI.Model, cfg.OpenAI.MaxTokens)
		router.Register(completion.Command(commandLimiter()))
	} else {
		log.Info("no completion API key configured, ask command disabled")
	}

	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		router.OnMessageCreate(m)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		snippets.OnMessageCreate(m)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		moderation.OnMessageCreate(m)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		raids.OnGuildMemberAdd(m)
	})
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		raids.OnReady(r)
	})

	if err := session.Open(); err != nil {
		log.Fatal("failed to open gateway connection", zap.Error(err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Error("failed to close gateway connection", zap.Error(err))
		}
	}()

	raids.Start(ctx)

	log.Info("chillbot is running, press Ctrl+C to exit")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		log.Info("shutdown requested")
	}

	log.Info("chillbot stopped")
}
