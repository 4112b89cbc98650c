// Package bot wires the Discord gateway to the session registry: slash
// commands start and stop per-guild recording sessions, trigger manual
// analysis passes and edit guild settings.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-insight-lab/internal/capture"
	"github.com/discord-insight-lab/internal/logging"
	"github.com/discord-insight-lab/internal/session"
	"github.com/discord-insight-lab/internal/settings"
)

// Bot holds the long-lived collaborators shared by all command handlers.
type Bot struct {
	dg       *discordgo.Session
	registry *session.Registry
	store    *settings.Store
	runner   session.Runner
	resolver capture.NameResolver
}

func New(dg *discordgo.Session, registry *session.Registry, store *settings.Store, runner session.Runner) *Bot {
	return &Bot{
		dg:       dg,
		registry: registry,
		store:    store,
		runner:   runner,
		resolver: capture.NewDiscordResolver(dg),
	}
}

// settingsSource adapts the SQLite store to the scheduler's lookup interface.
type settingsSource struct {
	store *settings.Store
}

func (s settingsSource) GuildSettings(ctx context.Context, guildID string) (session.Settings, error) {
	g, err := s.store.Guild(ctx, guildID)
	if err != nil {
		return session.Settings{}, err
	}
	return session.Settings{Mode: g.Mode, Interval: g.Interval}, nil
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "insight",
		Description: "Voice discussion recording and analysis",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start recording your current voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop recording and post a final analysis",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "analyze",
				Description: "Run an analysis pass on the audio captured so far",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "settings",
				Description: "Adjust analysis settings for this server",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "mode",
						Description: "Set the analysis mode",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "mode",
								Description: "Report style",
								Required:    true,
								Choices: []*discordgo.ApplicationCommandOptionChoice{
									{Name: "debate", Value: settings.ModeDebate},
									{Name: "summary", Value: settings.ModeSummary},
								},
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "interval",
						Description: "Set the analysis interval in seconds",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "seconds",
								Description: "Seconds between automated analyses (minimum 60)",
								Required:    true,
							},
						},
					},
				},
			},
		},
	},
}

// Register installs the interaction handler and publishes the command tree.
// Call after the gateway session is open.
func (b *Bot) Register() error {
	b.dg.AddHandler(b.handleInteraction)
	for _, cmd := range commands {
		if _, err := b.dg.ApplicationCommandCreate(b.dg.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("register command %s: %w", cmd.Name, err)
		}
	}
	logging.Infow("bot: commands registered", "count", len(commands))
	return nil
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "insight" || len(data.Options) == 0 {
		return
	}

	sub := data.Options[0]
	switch sub.Name {
	case "start":
		b.handleStart(i)
	case "stop":
		b.handleStop(i)
	case "analyze":
		b.handleAnalyze(i)
	case "settings":
		b.handleSettings(i, sub)
	}
}

func (b *Bot) handleStart(i *discordgo.InteractionCreate) {
	guildID := i.GuildID
	voiceChannelID := b.invokerVoiceChannel(guildID, interactionUserID(i))
	if voiceChannelID == "" {
		b.respond(i, "Join a voice channel first, then run `/insight start`.", true)
		return
	}

	sess, err := b.registry.CreateIfAbsent(guildID, func() *session.GuildSession {
		return session.NewGuildSession(guildID, i.ChannelID)
	})
	if err != nil {
		b.respond(i, "A recording session is already running in this server.", true)
		return
	}

	handle, err := capture.Join(b.dg, sess, voiceChannelID, b.resolver)
	if err != nil {
		b.registry.RemoveIf(guildID, sess)
		logging.Errorw("bot: voice join failed", "guild.id", guildID, "channel.id", voiceChannelID, "err", err)
		b.respond(i, "Could not join the voice channel.", true)
		return
	}
	capture.SeedMembers(b.dg, guildID, voiceChannelID, b.resolver)

	if err := sess.StartRecording(handle, settingsSource{store: b.store}, b.runner); err != nil {
		_ = handle.Close()
		b.registry.RemoveIf(guildID, sess)
		logging.Errorw("bot: session start failed", "guild.id", guildID, "err", err)
		b.respond(i, "Could not start the recording session.", true)
		return
	}

	cfg, cfgErr := b.store.Guild(context.Background(), guildID)
	interval := settings.DefaultInterval
	if cfgErr == nil {
		interval = cfg.Interval
	}
	b.respond(i, fmt.Sprintf("🎙️ Recording started. Automated analysis every %s.", interval), false)
}

func (b *Bot) handleStop(i *discordgo.InteractionCreate) {
	guildID := i.GuildID
	sess, ok := b.registry.Get(guildID)
	if !ok {
		b.respond(i, "No recording session is running in this server.", true)
		return
	}

	// The final analysis can take a while, so acknowledge first and follow
	// up when it completes.
	b.ack(i)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		outcome, err := sess.Stop(ctx)
		b.registry.RemoveIf(guildID, sess)

		switch {
		case errors.Is(err, session.ErrSessionStopped):
			b.followUp(i, "The session was already being stopped.")
		case outcome == session.OutcomeNoAudio:
			b.followUp(i, "⏹️ Recording stopped. No audio was captured since the last analysis.")
		default:
			b.followUp(i, "⏹️ Recording stopped. Final analysis posted.")
		}
	}()
}

func (b *Bot) handleAnalyze(i *discordgo.InteractionCreate) {
	guildID := i.GuildID
	sess, ok := b.registry.Get(guildID)
	if !ok || !sess.Active() {
		b.respond(i, "No recording session is running in this server.", true)
		return
	}

	b.ack(i)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		mode := settings.ModeDebate
		if cfg, err := b.store.Guild(ctx, guildID); err == nil {
			mode = cfg.Mode
		}

		outcome, err := b.runner.Run(ctx, sess, mode, false)
		switch outcome {
		case session.OutcomeSuccess:
			b.followUp(i, "✅ Analysis posted.")
		case session.OutcomeNoAudio:
			b.followUp(i, "No audio has been captured since the last analysis.")
		case session.OutcomeRateLimited:
			b.followUp(i, "Analysis is rate limited right now; try again later.")
		default:
			logging.Warnw("bot: manual analysis failed", "guild.id", guildID, "err", err)
			b.followUp(i, "Analysis failed; see the channel for details.")
		}
	}()
}

func (b *Bot) handleSettings(i *discordgo.InteractionCreate, group *discordgo.ApplicationCommandInteractionDataOption) {
	if len(group.Options) == 0 {
		return
	}
	sub := group.Options[0]
	ctx := context.Background()

	switch sub.Name {
	case "mode":
		mode, _ := sub.Options[0].Value.(string)
		if err := b.store.SetMode(ctx, i.GuildID, mode); err != nil {
			if errors.Is(err, settings.ErrInvalidMode) {
				b.respond(i, "Mode must be `debate` or `summary`.", true)
				return
			}
			logging.Errorw("bot: set mode failed", "guild.id", i.GuildID, "err", err)
			b.respond(i, "Could not save the setting.", true)
			return
		}
		b.respond(i, fmt.Sprintf("Analysis mode set to **%s**. Takes effect on the next cycle.", mode), true)
	case "interval":
		seconds, _ := sub.Options[0].Value.(float64)
		interval := time.Duration(seconds) * time.Second
		if err := b.store.SetInterval(ctx, i.GuildID, interval); err != nil {
			if errors.Is(err, settings.ErrIntervalTooLow) {
				b.respond(i, fmt.Sprintf("Interval must be at least %s.", settings.MinInterval), true)
				return
			}
			logging.Errorw("bot: set interval failed", "guild.id", i.GuildID, "err", err)
			b.respond(i, "Could not save the setting.", true)
			return
		}
		b.respond(i, fmt.Sprintf("Analysis interval set to **%s**. Takes effect on the next cycle.", interval), true)
	}
}

// invokerVoiceChannel finds the voice channel the user currently occupies,
// via gateway state.
func (b *Bot) invokerVoiceChannel(guildID, userID string) string {
	if userID == "" {
		return ""
	}
	guild, err := b.dg.State.Guild(guildID)
	if err != nil || guild == nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// StopAll stops every live session, used during shutdown. Final analyses run
// sequentially under the shared deadline.
func (b *Bot) StopAll(ctx context.Context) {
	for _, guildID := range b.registry.GuildIDs() {
		sess, ok := b.registry.Get(guildID)
		if !ok {
			continue
		}
		if _, err := sess.Stop(ctx); err != nil && !errors.Is(err, session.ErrSessionStopped) {
			logging.Warnw("bot: shutdown stop failed", "guild.id", guildID, "err", err)
		}
		b.registry.RemoveIf(guildID, sess)
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) respond(i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := b.dg.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: flags},
	})
	if err != nil {
		logging.Warnw("bot: interaction response failed", "err", err)
	}
}

func (b *Bot) ack(i *discordgo.InteractionCreate) {
	err := b.dg.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		logging.Warnw("bot: interaction defer failed", "err", err)
	}
}

func (b *Bot) followUp(i *discordgo.InteractionCreate, content string) {
	if _, err := b.dg.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content}); err != nil {
		logging.Warnw("bot: follow-up failed", "err", err)
	}
}
