package cogs

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// fakeSession records outbound calls so tests can assert on what a cog
// did without talking to Discord.
type fakeSession struct {
	mu sync.Mutex

	sent    []sentMessage
	deleted []deletedMessage

	banErrs map[string]error
	bans    []banCall

	timeouts []timeoutCall

	guildRoles   []*discordgo.Role
	createdRoles []*discordgo.RoleParams
	deletedRoles []string
	roleAdds     []roleAdd

	createdChannels []discordgo.GuildChannelCreateData
	deletedChannels []string
	dmChannels      []string
	threads         []threadCall

	// sendDelay stalls ChannelMessageSendComplex to simulate a slow
	// REST call.
	sendDelay time.Duration

	nextID int
}

type sentMessage struct {
	channelID string
	content   string
	embed     *discordgo.MessageEmbed
	reference *discordgo.MessageReference
}

type deletedMessage struct {
	channelID string
	messageID string
}

type banCall struct {
	guildID string
	userID  string
	reason  string
}

type timeoutCall struct {
	guildID string
	userID  string
	until   *time.Time
}

type roleAdd struct {
	guildID string
	userID  string
	roleID  string
}

type threadCall struct {
	channelID string
	messageID string
	name      string
}

func newFakeSession() *fakeSession {
	return &fakeSession{banErrs: make(map[string]error)}
}

func (s *fakeSession) nextMessageID() string {
	s.nextID++
	return fmt.Sprintf("msg-%d", s.nextID)
}

func (s *fakeSession) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{channelID: channelID, content: content})
	return &discordgo.Message{ID: s.nextMessageID(), ChannelID: channelID, Content: content}, nil
}

func (s *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if s.sendDelay > 0 {
		time.Sleep(s.sendDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{
		channelID: channelID,
		content:   data.Content,
		embed:     data.Embed,
		reference: data.Reference,
	})
	return &discordgo.Message{ID: s.nextMessageID(), ChannelID: channelID}, nil
}

func (s *fakeSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, deletedMessage{channelID: channelID, messageID: messageID})
	return nil
}

func (s *fakeSession) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedChannels = append(s.deletedChannels, channelID)
	return &discordgo.Channel{ID: channelID}, nil
}

func (s *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dmChannels = append(s.dmChannels, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (s *fakeSession) MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = append(s.threads, threadCall{channelID: channelID, messageID: messageID, name: data.Name})
	return &discordgo.Channel{ID: "thread-" + messageID}, nil
}

func (s *fakeSession) GuildBanCreateWithReason(guildID, userID, reason string, _ int, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.banErrs[userID]; ok {
		return err
	}
	s.bans = append(s.bans, banCall{guildID: guildID, userID: userID, reason: reason})
	return nil
}

func (s *fakeSession) GuildMemberTimeout(guildID string, userID string, until *time.Time, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts = append(s.timeouts, timeoutCall{guildID: guildID, userID: userID, until: until})
	return nil
}

func (s *fakeSession) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guildRoles, nil
}

func (s *fakeSession) GuildRoleCreate(_ string, data *discordgo.RoleParams, _ ...discordgo.RequestOption) (*discordgo.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createdRoles = append(s.createdRoles, data)
	return &discordgo.Role{ID: fmt.Sprintf("role-%d", len(s.createdRoles)), Name: data.Name}, nil
}

func (s *fakeSession) GuildRoleDelete(_, roleID string, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedRoles = append(s.deletedRoles, roleID)
	return nil
}

func (s *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleAdds = append(s.roleAdds, roleAdd{guildID: guildID, userID: userID, roleID: roleID})
	return nil
}

func (s *fakeSession) GuildChannelCreateComplex(_ string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createdChannels = append(s.createdChannels, data)
	return &discordgo.Channel{ID: fmt.Sprintf("channel-%d", len(s.createdChannels)), Name: data.Name}, nil
}

func (s *fakeSession) banCalls() []banCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]banCall, len(s.bans))
	copy(out, s.bans)
	return out
}

func (s *fakeSession) sentMessages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

var _ Session = (*fakeSession)(nil)

// guildMessage builds an inbound guild message for handler tests.
func guildMessage(guildID, channelID, authorID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "trigger-1",
			GuildID:   guildID,
			ChannelID: channelID,
			Content:   content,
			Author:    &discordgo.User{ID: authorID, Username: "user-" + authorID},
		},
	}
}
