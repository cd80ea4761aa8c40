// Package config provides application configuration management using environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bot
type Config struct {
	Bot       BotConfig
	Guild     GuildConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Raid      RaidConfig
	OpenAI    OpenAIConfig
	Logging   LoggingConfig
}

// BotConfig holds the gateway token and command prefixes
type BotConfig struct {
	Token         string
	CommandPrefix string
	SnippetPrefix string
	OwnerID       string
}

// GuildConfig holds the ids of the guild the bot serves and its special
// channels and roles. The bot is single-guild; events from other guilds
// are ignored.
type GuildConfig struct {
	GuildID                string
	StaffChannelID         string
	WelcomeChannelID       string
	ReportsCategoryID      string
	VerificationCategoryID string
	ModRoleID              string
	VerifiedRoleID         string
	ArtistRoleID           string
	MediaChannelIDs        []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RateLimitConfig holds the fixed-window cooldown parameters
type RateLimitConfig struct {
	SnippetMax    int
	SnippetWindow time.Duration
	CommandMax    int
	CommandWindow time.Duration
	SweepInterval time.Duration
}

// RaidConfig holds the join-burst detector parameters
type RaidConfig struct {
	PollInterval  time.Duration
	Threshold     int
	SettleDelay   time.Duration
	BansPerSecond float64
}

// OpenAIConfig holds the completion API credentials. APIKey may be empty,
// in which case the ask command is not registered.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
// It optionally loads from a .env file if it exists
func Load() (*Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Bot = BotConfig{
		Token:         getEnv("DISCORD_TOKEN", ""),
		CommandPrefix: getEnv("COMMAND_PREFIX", "!"),
		SnippetPrefix: getEnv("SNIPPET_PREFIX", ";"),
		OwnerID:       getEnv("OWNER_ID", ""),
	}

	cfg.Guild = GuildConfig{
		GuildID:                getEnv("GUILD_ID", ""),
		StaffChannelID:         getEnv("STAFF_CHANNEL_ID", ""),
		WelcomeChannelID:       getEnv("WELCOME_CHANNEL_ID", ""),
		ReportsCategoryID:      getEnv("REPORTS_CATEGORY_ID", ""),
		VerificationCategoryID: getEnv("VERIFICATION_CATEGORY_ID", ""),
		ModRoleID:              getEnv("MOD_ROLE_ID", ""),
		VerifiedRoleID:         getEnv("VERIFIED_ROLE_ID", ""),
		ArtistRoleID:           getEnv("ARTIST_ROLE_ID", ""),
		MediaChannelIDs:        splitIDs(getEnv("MEDIA_CHANNEL_IDS", "")),
	}

	maxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))

	cfg.Database = DatabaseConfig{
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", "chillbot"),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", "chillbot_db"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
	}

	snippetMax, _ := strconv.Atoi(getEnv("SNIPPET_COOLDOWN_MAX", "1"))
	snippetWindow, err := parseSeconds(getEnv("SNIPPET_COOLDOWN_WINDOW_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SNIPPET_COOLDOWN_WINDOW_SECONDS: %w", err)
	}
	commandMax, _ := strconv.Atoi(getEnv("COMMAND_COOLDOWN_MAX", "1"))
	commandWindow, err := parseSeconds(getEnv("COMMAND_COOLDOWN_WINDOW_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid COMMAND_COOLDOWN_WINDOW_SECONDS: %w", err)
	}
	sweepMinutes, _ := strconv.Atoi(getEnv("COOLDOWN_SWEEP_INTERVAL_MINUTES", "15"))

	cfg.RateLimit = RateLimitConfig{
		SnippetMax:    snippetMax,
		SnippetWindow: snippetWindow,
		CommandMax:    commandMax,
		CommandWindow: commandWindow,
		SweepInterval: time.Duration(sweepMinutes) * time.Minute,
	}

	pollSeconds, _ := strconv.Atoi(getEnv("RAID_POLL_INTERVAL_SECONDS", "3"))
	threshold, _ := strconv.Atoi(getEnv("RAID_THRESHOLD", "5"))
	settleSeconds, _ := strconv.Atoi(getEnv("RAID_SETTLE_DELAY_SECONDS", "10"))
	bansPerSecond, _ := strconv.ParseFloat(getEnv("RAID_BANS_PER_SECOND", "2"), 64)

	cfg.Raid = RaidConfig{
		PollInterval:  time.Duration(pollSeconds) * time.Second,
		Threshold:     threshold,
		SettleDelay:   time.Duration(settleSeconds) * time.Second,
		BansPerSecond: bansPerSecond,
	}

	maxTokens, _ := strconv.Atoi(getEnv("OPENAI_MAX_TOKENS", "256"))
	cfg.OpenAI = OpenAIConfig{
		APIKey:    getEnv("OPENAI_API_KEY", ""),
		Model:     getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		MaxTokens: maxTokens,
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.Bot.CommandPrefix == "" {
		return fmt.Errorf("COMMAND_PREFIX must not be empty")
	}
	if c.Bot.SnippetPrefix == "" {
		return fmt.Errorf("SNIPPET_PREFIX must not be empty")
	}
	if c.Bot.CommandPrefix == c.Bot.SnippetPrefix {
		return fmt.Errorf("COMMAND_PREFIX and SNIPPET_PREFIX must differ")
	}
	if c.Guild.GuildID == "" {
		return fmt.Errorf("GUILD_ID is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.RateLimit.SnippetMax <= 0 {
		return fmt.Errorf("SNIPPET_COOLDOWN_MAX must be positive")
	}
	if c.RateLimit.SnippetWindow <= 0 {
		return fmt.Errorf("SNIPPET_COOLDOWN_WINDOW_SECONDS must be positive")
	}
	if c.RateLimit.CommandMax <= 0 {
		return fmt.Errorf("COMMAND_COOLDOWN_MAX must be positive")
	}
	if c.RateLimit.CommandWindow <= 0 {
		return fmt.Errorf("COMMAND_COOLDOWN_WINDOW_SECONDS must be positive")
	}

	if c.Raid.PollInterval <= 0 {
		return fmt.Errorf("RAID_POLL_INTERVAL_SECONDS must be positive")
	}
	if c.Raid.Threshold <= 0 {
		return fmt.Errorf("RAID_THRESHOLD must be positive")
	}
	if c.Raid.BansPerSecond <= 0 {
		return fmt.Errorf("RAID_BANS_PER_SECOND must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseSeconds(value string) (time.Duration, error) {
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// splitIDs parses a comma-separated id list, dropping empty entries.
func splitIDs(value string) []string {
	if value == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}
