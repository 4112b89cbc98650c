// Package publish adapts the Discord messaging API to the report
// publication surface used by the analysis pipeline.
package publish

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// threadAutoArchiveMinutes keeps report threads short-lived in the channel
// list once a cycle's discussion dies down.
const threadAutoArchiveMinutes = 60

// DiscordPublisher posts messages, opens report threads and streams thread
// content through a discordgo session.
type DiscordPublisher struct {
	s *discordgo.Session
}

func NewDiscordPublisher(s *discordgo.Session) *DiscordPublisher {
	return &DiscordPublisher{s: s}
}

func (p *DiscordPublisher) PostMessage(channelID, content string) (string, error) {
	msg, err := p.s.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", fmt.Errorf("send message to channel %s: %w", channelID, err)
	}
	return msg.ID, nil
}

func (p *DiscordPublisher) CreateThread(channelID, messageID, title string) (string, error) {
	thread, err := p.s.MessageThreadStartComplex(channelID, messageID, &discordgo.ThreadStart{
		Name:                title,
		AutoArchiveDuration: threadAutoArchiveMinutes,
	})
	if err != nil {
		return "", fmt.Errorf("start thread on message %s: %w", messageID, err)
	}
	return thread.ID, nil
}

func (p *DiscordPublisher) SendToThread(threadID, content string) error {
	if _, err := p.s.ChannelMessageSend(threadID, content); err != nil {
		return fmt.Errorf("send message to thread %s: %w", threadID, err)
	}
	return nil
}
