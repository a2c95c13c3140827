package notification

import (
	"fmt"
	"os"
	apperrors "runonsave/pkg/errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// DefaultRatePerMinute bounds how many messages a client posts per minute
const DefaultRatePerMinute = 10

// Message is a notification about a finished run
type Message struct {
	Title       string
	Description string
	Severity    string
	Fields      map[string]string
	Timestamp   time.Time
}

// Notifier delivers messages to some out-of-band channel
type Notifier interface {
	Send(msg Message) error
}

// sender is the part of a discordgo session the client needs
type sender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

type NotificationClient struct {
	sg        sender
	channelID string
	limiter   *rate.Limiter
}

func newClient(sg sender, channelID string) *NotificationClient {
	return &NotificationClient{
		sg:        sg,
		channelID: channelID,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/DefaultRatePerMinute), DefaultRatePerMinute),
	}
}

// NewNotificationClient opens a Discord session using DISCORD_TOKEN and
// posts to DISCORD_CHANNEL_ID
func NewNotificationClient() (*NotificationClient, error) {
	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN environment variable not set")
	}
	channelID := os.Getenv("DISCORD_CHANNEL_ID")
	if channelID == "" {
		return nil, fmt.Errorf("DISCORD_CHANNEL_ID not set")
	}

	sg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	if err := sg.Open(); err != nil {
		return nil, err
	}

	return newClient(sg, channelID), nil
}

func (c *NotificationClient) getSeverityColor(severity string) int {
	switch severity {
	case "error":
		return 0xFF0000
	case "warning":
		return 0xFF8C00
	case "info":
		return 0x00BFFF
	default:
		return 0x808080
	}
}

// Send posts msg as an embed. Messages over the rate limit are dropped with
// ErrNotificationRateLimited.
func (c *NotificationClient) Send(msg Message) error {
	if c == nil || c.sg == nil {
		return apperrors.ErrDiscordNotConfigured
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return apperrors.ErrNotificationRateLimited
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       c.getSeverityColor(msg.Severity),
		Timestamp:   msg.Timestamp.Format(time.RFC3339),
	}

	if len(msg.Fields) > 0 {
		fields := make([]*discordgo.MessageEmbedField, 0, len(msg.Fields))
		for key, value := range msg.Fields {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   key,
				Value:  value,
				Inline: true,
			})
		}
		embed.Fields = fields
	}

	_, err := c.sg.ChannelMessageSendEmbed(c.channelID, embed)
	return err
}

func (c *NotificationClient) Close() error {
	if c != nil && c.sg != nil {
		return c.sg.Close()
	}
	return nil
}
