package notification

import (
	apperrors "runonsave/pkg/errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	args := m.Called(channelID, embed)
	return nil, args.Error(0)
}

func (m *mockSender) Close() error {
	return m.Called().Error(0)
}

func TestSend_BuildsEmbed(t *testing.T) {
	s := new(mockSender)
	client := &NotificationClient{sg: s, channelID: "chan-1"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s.On("ChannelMessageSendEmbed", "chan-1", mock.MatchedBy(func(e *discordgo.MessageEmbed) bool {
		return e.Title == "Run failed" &&
			e.Color == 0xFF0000 &&
			e.Timestamp == "2026-01-02T03:04:05Z" &&
			len(e.Fields) == 1 && e.Fields[0].Name == "exit_code" && e.Fields[0].Value == "2"
	})).Return(nil)
	s.On("Close").Return(nil)

	err := client.Send(Message{
		Title:     "Run failed",
		Severity:  "error",
		Fields:    map[string]string{"exit_code": "2"},
		Timestamp: at,
	})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	s.AssertExpectations(t)
}

func TestSend_RateLimited(t *testing.T) {
	s := new(mockSender)
	client := newClient(s, "chan-1")
	s.On("ChannelMessageSendEmbed", "chan-1", mock.Anything).Return(nil)

	for i := 0; i < DefaultRatePerMinute; i++ {
		require.NoError(t, client.Send(Message{Title: "Run failed", Severity: "error"}))
	}
	assert.ErrorIs(t, client.Send(Message{Title: "Run failed"}), apperrors.ErrNotificationRateLimited)

	s.AssertNumberOfCalls(t, "ChannelMessageSendEmbed", DefaultRatePerMinute)
}

func TestSend_Unconfigured(t *testing.T) {
	var client *NotificationClient
	assert.ErrorIs(t, client.Send(Message{}), apperrors.ErrDiscordNotConfigured)
	assert.NoError(t, client.Close())
}

func TestNewNotificationClient_RequiresEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	_, err := NewNotificationClient()
	assert.Error(t, err)

	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_CHANNEL_ID", "")
	_, err = NewNotificationClient()
	assert.Error(t, err)
}
