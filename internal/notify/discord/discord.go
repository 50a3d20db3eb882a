// Package discord posts budget alerts to a Discord channel through the bot
// REST API. No gateway connection is opened.
package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"budgetsync/internal/core"
	"budgetsync/internal/notify"
)

// Embed colours per severity band.
const (
	colorSafe     = 0x2ecc71
	colorWarning  = 0xf1c40f
	colorCritical = 0xe67e22
	colorExceeded = 0xe74c3c
)

// sender is the part of *discordgo.Session the notifier uses.
type sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Notifier struct {
	session   sender
	closer    func() error
	channelID string
	currency  string
}

var _ notify.Notifier = (*Notifier)(nil)

func New(token, channelID, currency string) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("missing Discord bot token")
	}
	if channelID == "" {
		return nil, errors.New("missing Discord channel id")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Client.Timeout = 10 * time.Second
	return &Notifier{
		session:   session,
		closer:    session.Close,
		channelID: channelID,
		currency:  currency,
	}, nil
}

func (n *Notifier) Notify(ctx context.Context, a notify.Alert) error {
	_, err := n.session.ChannelMessageSendComplex(n.channelID, n.message(a), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send Discord alert: %w", err)
	}
	return nil
}

func (n *Notifier) message(a notify.Alert) *discordgo.MessageSend {
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: a.UserID, Inline: true},
		{Name: "Utilization", Value: fmt.Sprintf("%.1f%%", a.Utilization), Inline: true},
	}
	if a.Previous != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Previously", Value: string(a.Previous), Inline: true})
	}
	embed := &discordgo.MessageEmbed{
		Title:       a.Title(),
		Description: a.Describe(n.currency),
		Color:       colorFor(a.Severity),
		Fields:      fields,
	}
	if !a.At.IsZero() {
		embed.Timestamp = a.At.UTC().Format(time.RFC3339)
	}
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
}

func colorFor(s core.Severity) int {
	switch s {
	case core.SeverityWarning:
		return colorWarning
	case core.SeverityCritical:
		return colorCritical
	case core.SeverityExceeded:
		return colorExceeded
	default:
		return colorSafe
	}
}

func (n *Notifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}
