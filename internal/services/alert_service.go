package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/time/rate"

	"github.com/akagifreeez/gemini-key-pool/internal/models"
)

// AlertSender is the part of *discordgo.Session used to post alerts
type AlertSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// NewDiscordSession opens a bot session for alerting
func NewDiscordSession(botToken string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return s, nil
}

// AlertService posts a Discord alert when requests fail because the pool has
// no enabled key. Alerts are throttled to one per cooldown.
type AlertService struct {
	sender    AlertSender
	channelID string
	limiter   *rate.Limiter
	registry  *KeyRegistry
	stats     *StatsAggregator
	printer   *message.Printer
}

func NewAlertService(sender AlertSender, channelID string, cooldown time.Duration, registry *KeyRegistry, stats *StatsAggregator) *AlertService {
	limit := rate.Inf
	if cooldown > 0 {
		limit = rate.Every(cooldown)
	}
	return &AlertService{
		sender:    sender,
		channelID: channelID,
		limiter:   rate.NewLimiter(limit, 1),
		registry:  registry,
		stats:     stats,
		printer:   message.NewPrinter(language.English),
	}
}

// NotifyFailure implements FailureNotifier
func (a *AlertService) NotifyFailure(ctx context.Context, entry models.ErrorLogEntry) {
	if entry.KeyID != models.NoKeySentinel {
		return
	}
	if !a.limiter.Allow() {
		log.Debug().Msg("Pool exhaustion alert suppressed by cooldown")
		return
	}

	_, err := a.sender.ChannelMessageSendComplex(a.channelID, &discordgo.MessageSend{
		Content: "🚨 **API key pool exhausted**",
		Embeds:  []*discordgo.MessageEmbed{a.buildEmbed(entry)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Str("channel_id", a.channelID).Msg("Failed to send pool exhaustion alert")
		return
	}
	log.Info().Str("channel_id", a.channelID).Msg("Pool exhaustion alert sent")
}

func (a *AlertService) buildEmbed(entry models.ErrorLogEntry) *discordgo.MessageEmbed {
	enabled, disabled := a.registry.Counts()
	stats := a.stats.Snapshot()

	return &discordgo.MessageEmbed{
		Title:       "No available API keys",
		Description: "A proxied request was rejected because every pooled key is disabled or the pool is empty.",
		Color:       0xff0000,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Request", Value: entry.RequestPath, Inline: false},
			{Name: "Enabled keys", Value: a.printer.Sprintf("%d", enabled), Inline: true},
			{Name: "Disabled keys", Value: a.printer.Sprintf("%d", disabled), Inline: true},
			{Name: "Total requests", Value: a.printer.Sprintf("%d", stats.TotalRequests), Inline: true},
			{Name: "Success rate", Value: a.printer.Sprintf("%.2f%%", stats.SuccessRate), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Gemini Key Pool"},
		Timestamp: entry.Timestamp.Format(time.RFC3339),
	}
}
