package cogs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chillcorner/chillbot/internal/database"
	"github.com/chillcorner/chillbot/internal/models"
)

type fakeRoleStore struct {
	mu    sync.Mutex
	roles map[string]*models.CustomRole
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{roles: make(map[string]*models.CustomRole)}
}

func (s *fakeRoleStore) CreateCustomRole(_ context.Context, role *models.CustomRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.UserID]; ok {
		return database.ErrRoleExists
	}
	s.roles[role.UserID] = role
	return nil
}

func (s *fakeRoleStore) GetCustomRoleByUserID(_ context.Context, userID string) (*models.CustomRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[userID]
	if !ok {
		return nil, database.ErrRoleNotFound
	}
	return role, nil
}

func (s *fakeRoleStore) DeleteCustomRoleByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[userID]; !ok {
		return database.ErrRoleNotFound
	}
	delete(s.roles, userID)
	return nil
}

var _ RoleStore = (*fakeRoleStore)(nil)

func newTestRoles(t *testing.T, httpClient *http.Client) (*CustomRoles, *fakeSession, *fakeRoleStore) {
	t.Helper()
	session := newFakeSession()
	store := newFakeRoleStore()
	return NewCustomRoles(session, store, zap.NewNop(), httpClient, testGuildID), session, store
}

func runRole(cog *CustomRoles, authorID string, args ...string) error {
	m := guildMessage(testGuildID, testChannelID, authorID, "!role")
	return cog.Command(nil).Run(&Context{Session: cog.session, Message: m, Args: args})
}

func TestRoles_CreateAssignsAndRecords(t *testing.T) {
	cog, session, store := newTestRoles(t, nil)

	require.NoError(t, runRole(cog, "user-1", "create", "Stargazer", "#ff9900"))

	require.Len(t, session.createdRoles, 1)
	params := session.createdRoles[0]
	assert.Equal(t, "Stargazer", params.Name)
	require.NotNil(t, params.Color)
	assert.Equal(t, 0xff9900, *params.Color)
	require.NotNil(t, params.Mentionable)
	assert.True(t, *params.Mentionable)

	require.Len(t, session.roleAdds, 1)
	assert.Equal(t, "user-1", session.roleAdds[0].userID)

	record, err := store.GetCustomRoleByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Stargazer", record.Name)
	assert.Equal(t, "#ff9900", record.Color.String)

	sent := session.sentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].content, "Stargazer")
}

func TestRoles_CreateShortHexColor(t *testing.T) {
	cog, session, _ := newTestRoles(t, nil)

	require.NoError(t, runRole(cog, "user-1", "create", "Minty", "#0f0"))

	require.Len(t, session.createdRoles, 1)
	require.NotNil(t, session.createdRoles[0].Color)
	assert.Equal(t, 0x00ff00, *session.createdRoles[0].Color)
}

func TestRoles_CreateFetchesIcon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake-png-bytes"))
	}))
	defer server.Close()

	cog, session, _ := newTestRoles(t, server.Client())

	iconURL := server.URL + "/icon.png"
	require.NoError(t, runRole(cog, "user-1", "create", "Iconic", iconURL))

	require.Len(t, session.createdRoles, 1)
	icon := session.createdRoles[0].Icon
	require.NotNil(t, icon)
	assert.Contains(t, *icon, "data:image/png;base64,")
}

func TestRoles_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing name", []string{"create"}, "Usage"},
		{"name too long", []string{"create", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}, "at most 32 characters"},
		{"bad color", []string{"create", "Nice", "#zzz"}, "hex color"},
		{"bad icon url", []string{"create", "Nice", "https://example.com/icon.webp"}, "PNG or JPG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cog, session, _ := newTestRoles(t, nil)

			err := runRole(cog, "user-1", tt.args...)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Error(), tt.want)
			assert.Empty(t, session.createdRoles)
		})
	}
}

func TestRoles_CreateRejectsDuplicateGuildRoleName(t *testing.T) {
	cog, session, _ := newTestRoles(t, nil)
	session.guildRoles = []*discordgo.Role{{ID: "existing", Name: "STARGAZER"}}

	err := runRole(cog, "user-1", "create", "Stargazer")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Error(), "unique")
	assert.Empty(t, session.createdRoles)
}

func TestRoles_CreateRejectsSecondRolePerUser(t *testing.T) {
	cog, session, _ := newTestRoles(t, nil)

	require.NoError(t, runRole(cog, "user-1", "create", "First"))

	err := runRole(cog, "user-1", "create", "Second")
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Error(), "already have a custom role")
	assert.Len(t, session.createdRoles, 1)
}

func TestRoles_DeleteRemovesRoleAndRecord(t *testing.T) {
	cog, session, store := newTestRoles(t, nil)
	require.NoError(t, runRole(cog, "user-1", "create", "Ephemeral"))
	createdID := session.roleAdds[0].roleID

	require.NoError(t, runRole(cog, "user-1", "delete"))

	assert.Equal(t, []string{createdID}, session.deletedRoles)
	_, err := store.GetCustomRoleByUserID(context.Background(), "user-1")
	assert.ErrorIs(t, err, database.ErrRoleNotFound)
}

func TestRoles_DeleteWithoutRole(t *testing.T) {
	cog, _, _ := newTestRoles(t, nil)

	err := runRole(cog, "user-1", "delete")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Error(), "don't have a custom role")
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"#ff9900", 0xff9900, false},
		{"#FF9900", 0xff9900, false},
		{"#abc", 0xaabbcc, false},
		{"#nothex", 0, true},
	}

	for _, tt := range tests {
		got, err := parseHexColor(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
