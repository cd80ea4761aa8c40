package cogs

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/chillcorner/chillbot/internal/database"
	"github.com/chillcorner/chillbot/internal/models"
	"github.com/chillcorner/chillbot/internal/ratelimit"
)

const (
	maxRoleNameLen = 32
	maxIconURLLen  = 1024
	maxIconBytes   = 256 << 10
)

var (
	hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	iconURLPattern  = regexp.MustCompile(`(?i)^https?://\S+\.(?:png|jpg|jpeg)$`)
)

// RoleStore is the store surface the custom roles cog needs.
type RoleStore interface {
	CreateCustomRole(ctx context.Context, role *models.CustomRole) error
	GetCustomRoleByUserID(ctx context.Context, userID string) (*models.CustomRole, error)
	DeleteCustomRoleByUserID(ctx context.Context, userID string) error
}

// CustomRoles lets members create and delete one vanity role each.
type CustomRoles struct {
	session    Session
	store      RoleStore
	logger     *zap.Logger
	httpClient *http.Client
	guildID    string
}

// NewCustomRoles creates the custom roles cog. httpClient fetches role
// icons; nil uses http.DefaultClient.
func NewCustomRoles(session Session, store RoleStore, logger *zap.Logger, httpClient *http.Client, guildID string) *CustomRoles {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CustomRoles{
		session:    session,
		store:      store,
		logger:     logger,
		httpClient: httpClient,
		guildID:    guildID,
	}
}

// Command returns the "role" command for the router.
func (c *CustomRoles) Command(cooldown *ratelimit.Limiter) *Command {
	return &Command{
		Name:     "role",
		Help:     "Manage your custom role: role create <name> [#color] [icon_url], role delete",
		Cooldown: cooldown,
		Run: func(cmdCtx *Context) error {
			if len(cmdCtx.Args) == 0 {
				return Validationf("Usage: role <create|delete> ...")
			}
			switch strings.ToLower(cmdCtx.Args[0]) {
			case "create":
				return c.runCreate(cmdCtx)
			case "delete":
				return c.runDelete(cmdCtx)
			default:
				return Validationf("Unknown subcommand %q.", cmdCtx.Args[0])
			}
		},
	}
}

func (c *CustomRoles) runCreate(cmdCtx *Context) error {
	if len(cmdCtx.Args) < 2 {
		return Validationf("Usage: role create <name> [#color] [icon_url]")
	}

	name := cmdCtx.Args[1]
	var color, iconURL string
	for _, arg := range cmdCtx.Args[2:] {
		if strings.HasPrefix(arg, "#") {
			color = arg
		} else {
			iconURL = arg
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	userID := cmdCtx.Message.Author.ID
	if _, err := c.store.GetCustomRoleByUserID(ctx, userID); err == nil {
		return Validationf("You already have a custom role. Delete it first with `role delete`.")
	} else if !errors.Is(err, database.ErrRoleNotFound) {
		return fmt.Errorf("checking existing custom role: %w", err)
	}

	params, err := c.buildRoleParams(ctx, name, color, iconURL)
	if err != nil {
		return err
	}

	role, err := c.session.GuildRoleCreate(c.guildID, params)
	if err != nil {
		return fmt.Errorf("creating guild role %q: %w", name, err)
	}

	if err := c.session.GuildMemberRoleAdd(c.guildID, userID, role.ID); err != nil {
		return fmt.Errorf("assigning role %q: %w", name, err)
	}

	record := &models.CustomRole{
		UserID:      userID,
		RoleID:      role.ID,
		Name:        name,
		Mentionable: true,
	}
	if color != "" {
		record.Color = sql.NullString{String: color, Valid: true}
	}
	if iconURL != "" {
		record.IconURL = sql.NullString{String: iconURL, Valid: true}
	}

	if err := c.store.CreateCustomRole(ctx, record); err != nil {
		c.logger.Error("failed to record custom role",
			zap.String("user_id", userID),
			zap.String("role_id", role.ID),
			zap.Error(err),
		)
	}

	return cmdCtx.Reply(fmt.Sprintf("Created and assigned role **%s**!", name))
}

func (c *CustomRoles) runDelete(cmdCtx *Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	userID := cmdCtx.Message.Author.ID
	record, err := c.store.GetCustomRoleByUserID(ctx, userID)
	if errors.Is(err, database.ErrRoleNotFound) {
		return Validationf("You don't have a custom role.")
	}
	if err != nil {
		return fmt.Errorf("looking up custom role: %w", err)
	}

	if err := c.session.GuildRoleDelete(c.guildID, record.RoleID); err != nil {
		return fmt.Errorf("deleting guild role: %w", err)
	}

	if err := c.store.DeleteCustomRoleByUserID(ctx, userID); err != nil {
		c.logger.Error("failed to remove custom role record",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	return cmdCtx.Reply(fmt.Sprintf("Deleted your custom role **%s**.", record.Name))
}

// buildRoleParams validates the user input and assembles the REST
// payload, fetching the icon if one was given.
func (c *CustomRoles) buildRoleParams(ctx context.Context, name, color, iconURL string) (*discordgo.RoleParams, error) {
	if len(name) > maxRoleNameLen {
		return nil, Validationf("Role names must be at most %d characters.", maxRoleNameLen)
	}

	existing, err := c.session.GuildRoles(c.guildID)
	if err != nil {
		return nil, fmt.Errorf("listing guild roles: %w", err)
	}
	for _, role := range existing {
		if strings.EqualFold(role.Name, name) {
			return nil, Validationf("Role name must be unique.")
		}
	}

	mentionable := true
	params := &discordgo.RoleParams{
		Name:        name,
		Mentionable: &mentionable,
	}

	if color != "" {
		if !hexColorPattern.MatchString(color) {
			return nil, Validationf("Role color must be a hex color like #ff9900.")
		}
		value, err := parseHexColor(color)
		if err != nil {
			return nil, Validationf("Role color must be a hex color like #ff9900.")
		}
		params.Color = &value
	}

	if iconURL != "" {
		if len(iconURL) > maxIconURLLen || !iconURLPattern.MatchString(iconURL) {
			return nil, Validationf("Role icon must be a PNG or JPG image URL.")
		}
		icon, err := c.fetchIcon(ctx, iconURL)
		if err != nil {
			return nil, fmt.Errorf("fetching role icon: %w", err)
		}
		params.Icon = &icon
	}

	return params, nil
}

// fetchIcon downloads the icon and encodes it as the data URI the role
// endpoint expects.
func (c *CustomRoles) fetchIcon(ctx context.Context, iconURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes))
	if err != nil {
		return "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(body)), nil
}

// parseHexColor converts "#rgb" or "#rrggbb" to the integer Discord
// expects.
func parseHexColor(color string) (int, error) {
	hex := strings.TrimPrefix(color, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	value, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}

var _ RoleStore = (*database.DB)(nil)
