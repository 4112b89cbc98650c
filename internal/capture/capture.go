// Package capture joins a guild voice channel, decodes the incoming Opus
// stream per speaker and feeds raw PCM into the session recorder.
package capture

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"

	"github.com/discord-insight-lab/internal/logging"
	"github.com/discord-insight-lab/internal/session"
)

const (
	sampleRate = 48000
	channels   = 2
	// maxFrameSamples covers up to 120ms of audio per channel, the largest
	// frame Opus allows.
	maxFrameSamples = 5760
)

// Capture owns one voice connection and the goroutine draining its packet
// stream. Close releases the connection and waits for the drain loop.
type Capture struct {
	vc *discordgo.VoiceConnection

	closeOnce sync.Once
	closeErr  error
	stop      chan struct{}
	done      chan struct{}
}

// Join connects to voiceChannelID and starts decoding into the session's
// recorder. The session's own channel id is the text channel reports are
// published to and is never a valid join target. Speaking updates map SSRCs
// to users so flushed audio carries display names.
func Join(s *discordgo.Session, sess *session.GuildSession, voiceChannelID string, resolver NameResolver) (*Capture, error) {
	if voiceChannelID == "" {
		return nil, fmt.Errorf("no voice channel to join in guild %s", sess.GuildID())
	}

	vc, err := s.ChannelVoiceJoin(sess.GuildID(), voiceChannelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", voiceChannelID, err)
	}
	if vc.OpusRecv == nil {
		_ = vc.Disconnect()
		return nil, fmt.Errorf("voice connection for channel %s has no receive stream", voiceChannelID)
	}

	vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		if su == nil || su.UserID == "" {
			return
		}
		name := resolver.UserName(su.UserID)
		if name == "" {
			name = su.UserID
		}
		sess.SetSpeakerName(uint32(su.SSRC), name)
		logging.Debugw("capture: speaking update",
			"guild.id", sess.GuildID(), "user.id", su.UserID, "ssrc", su.SSRC)
	})

	c := &Capture{vc: vc, stop: make(chan struct{}), done: make(chan struct{})}
	go c.drain(sess)

	logging.Infow("capture: joined voice channel",
		"guild.id", sess.GuildID(), "channel.id", voiceChannelID)
	return c, nil
}

// drain reads packets until the receive channel closes, decoding each SSRC
// with its own decoder since Opus decoder state is per-stream.
func (c *Capture) drain(sess *session.GuildSession) {
	defer close(c.done)

	decoders := make(map[uint32]*opus.Decoder)
	pcm := make([]int16, maxFrameSamples*channels)

	for {
		var pkt *discordgo.Packet
		var ok bool
		select {
		case <-c.stop:
			return
		case pkt, ok = <-c.vc.OpusRecv:
			if !ok {
				return
			}
		}
		if pkt == nil || len(pkt.Opus) == 0 {
			continue
		}

		dec, ok := decoders[pkt.SSRC]
		if !ok {
			var err error
			dec, err = opus.NewDecoder(sampleRate, channels)
			if err != nil {
				logging.Errorw("capture: decoder init failed", "ssrc", pkt.SSRC, "err", err)
				continue
			}
			decoders[pkt.SSRC] = dec
		}

		n, err := dec.Decode(pkt.Opus, pcm)
		if err != nil {
			logging.Debugw("capture: opus decode error", "ssrc", pkt.SSRC, "err", err)
			continue
		}

		sess.Recorder().Ingest(pkt.SSRC, pcmToBytes(pcm[:n*channels]))
	}
}

// pcmToBytes serializes interleaved samples as little-endian 16-bit PCM.
func pcmToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// SeedMembers pre-populates speaker names from the members currently in the
// voice channel so the first flush is labeled even before anyone speaks.
// SSRCs are unknown until the first speaking update, so this only warms the
// resolver cache.
func SeedMembers(s *discordgo.Session, guildID, channelID string, resolver NameResolver) {
	guild, err := s.State.Guild(guildID)
	if err != nil || guild == nil {
		return
	}
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		resolver.UserName(vs.UserID)
	}
}

// Close disconnects from the voice channel and waits for the drain loop to
// observe the closed receive stream.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.closeErr = c.vc.Disconnect()
		<-c.done
	})
	return c.closeErr
}
