// Package discord posts settlement summaries to a Discord channel webhook.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"

	"conti/internal/core"
)

// maxLines keeps the embed description well under Discord's 4096 limit.
const maxLines = 25

const embedColor = 0x2E8B57

var ErrInvalidWebhookURL = errors.New("invalid discord webhook url")

type Notifier struct {
	session *discordgo.Session
	id      string
	token   string
}

// New returns a notifier for a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}.
func New(webhookURL string) (*Notifier, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook calls authenticate through the token in the path.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Notifier{session: session, id: id, token: token}, nil
}

func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" {
		return "", "", ErrInvalidWebhookURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", ErrInvalidWebhookURL
}

// NotifyReport posts the settlement plan. names maps member ids to display
// names.
func (n *Notifier) NotifyReport(ctx context.Context, r core.Report, groupName string, names map[string]string) error {
	params := &discordgo.WebhookParams{
		Username: "conti",
		Embeds:   []*discordgo.MessageEmbed{reportEmbed(r, groupName, names)},
		// Display names must never ping anyone.
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if _, err := n.session.WebhookExecute(n.id, n.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("execute webhook: %w", err)
	}
	return nil
}

func reportEmbed(r core.Report, groupName string, names map[string]string) *discordgo.MessageEmbed {
	title := "Settlements"
	if groupName != "" {
		title = groupName + " · settlements"
	}

	var b strings.Builder
	if len(r.Settlements) == 0 {
		b.WriteString("Everyone is settled up.")
	}
	for i, s := range r.Settlements {
		if i == maxLines {
			fmt.Fprintf(&b, "…and %d more", len(r.Settlements)-maxLines)
			break
		}
		fmt.Fprintf(&b, "**%s** → **%s**: %s\n",
			escape(nameOf(names, s.FromMemberID)),
			escape(nameOf(names, s.ToMemberID)),
			s.Amount.FormatEuros())
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.TrimRight(b.String(), "\n"),
		Color:       embedColor,
		Timestamp:   r.ComputedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Total spent %s · %d transfers", r.TotalSpent.FormatEuros(), len(r.Settlements)),
		},
	}
}

func nameOf(names map[string]string, id string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}

var markdownEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "~", `\~`, "`", "\\`", "|", `\|`, ">", `\>`)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
