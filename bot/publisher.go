package bot

import (
	"bytes"
	"context"
	"fmt"

	"postmaker/model"
	"postmaker/utils"

	"github.com/bwmarrin/discordgo"
)

const historyPageSize = 100

// ChannelPublisher sends finished posts to the broadcast channel and reads
// them back for index rebuilds.
type ChannelPublisher struct {
	dg        *discordgo.Session
	channelID string
}

func NewChannelPublisher(dg *discordgo.Session, channelID string) *ChannelPublisher {
	return &ChannelPublisher{dg: dg, channelID: channelID}
}

// Publish sends the post text with the banner attached and returns the
// channel message id.
func (p *ChannelPublisher) Publish(ctx context.Context, text string, image []byte) (string, error) {
	msg, err := p.dg.ChannelFileSendWithMessage(p.channelID, text, "banner.png",
		bytes.NewReader(image), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send to channel %s: %w", p.channelID, err)
	}
	return msg.ID, nil
}

// EnumerateHistory walks the full channel history, newest first, and returns
// every message that parses as a release post. Non-post chatter is skipped.
func (p *ChannelPublisher) EnumerateHistory(ctx context.Context) ([]model.Post, error) {
	var out []model.Post
	beforeID := ""
	for {
		page, err := p.dg.ChannelMessages(p.channelID, historyPageSize, beforeID, "", "",
			discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("read channel history: %w", err)
		}
		if len(page) == 0 {
			return out, nil
		}
		for _, m := range page {
			post, ok := utils.ParsePostHeader(m.Content)
			if !ok {
				continue
			}
			post.MessageID = m.ID
			post.PublishedAt = m.Timestamp
			if m.Author != nil && post.Maintainer == "" {
				post.Maintainer = m.Author.Username
			}
			out = append(out, post)
		}
		beforeID = page[len(page)-1].ID
	}
}
