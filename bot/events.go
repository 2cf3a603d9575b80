package bot

import (
	"context"
	"strings"

	"postmaker/config"
	"postmaker/router"
	"postmaker/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func registerEventHandlers(dg *discordgo.Session, b *Bot) {
	dg.AddHandler(b.onMessageCreate)

	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
}

// onMessageCreate normalizes an incoming message into a router event. The
// wizard runs over direct messages; commands are accepted anywhere.
func (b *Bot) onMessageCreate(dg *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	ev := router.Event{
		UserID:   m.Author.ID,
		ChatID:   m.ChannelID,
		Username: m.Author.Username,
		IsOwner:  isOwner(m.Author.ID),
	}
	if strings.HasPrefix(content, "/") {
		word, rest, _ := strings.Cut(content[1:], " ")
		ev.Command = strings.ToLower(word)
		ev.Args = strings.TrimSpace(rest)
	} else {
		if !isDM {
			// Plain chatter in guild channels is none of our business.
			return
		}
		ev.Args = content
	}

	if isDM && !ev.IsOwner {
		acct, err := b.quota.Account(ev.UserID)
		if err != nil {
			utils.Logger.Error("load account for PM gate",
				zap.String("user", ev.UserID), zap.Error(err))
			return
		}
		if !acct.PMEnabled {
			return
		}
	}

	b.router.Dispatch(context.Background(), ev, func(text string) {
		if _, err := dg.ChannelMessageSend(m.ChannelID, text); err != nil {
			utils.Logger.Error("send reply",
				zap.String("channel", m.ChannelID), zap.Error(err))
		}
	})
}

func isOwner(userID string) bool {
	for _, id := range config.Cfg.Owners {
		if id == userID {
			return true
		}
	}
	return false
}
