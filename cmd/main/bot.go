package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/Pizzabot/pkg/corpus"
	"github.com/CTAG07/Pizzabot/pkg/markov"
)

// channelReplacer strips characters that chat platforms put around room ids.
var channelReplacer = strings.NewReplacer("#", "", "<", "", ">", "", ":", "", "@", "", "!", "")

// sanitizeChannel turns a platform room id into a channel key.
func sanitizeChannel(id string) string {
	return channelReplacer.Replace(id)
}

// RebuildStats reports what a Rebuild fed into the fresh model.
type RebuildStats struct {
	Legacy   corpus.LoadStats   `json:"legacy"`
	Journal  corpus.ReplayStats `json:"journal"`
	Duration time.Duration      `json:"duration"`
}

// Bot serializes access to a markov.Model and mirrors every observed message into
// the journal, when one is configured.
type Bot struct {
	mu      sync.Mutex
	model   *markov.Model
	journal *corpus.Journal
	config  *BotConfig
	logger  *slog.Logger
}

// NewBot creates a bot with an empty model. journal may be nil.
func NewBot(config *BotConfig, journal *corpus.Journal, logger *slog.Logger, opts ...markov.Option) *Bot {
	b := &Bot{
		journal: journal,
		config:  config,
		logger:  logger,
	}
	b.model = b.newModel(opts...)
	return b
}

func (b *Bot) newModel(opts ...markov.Option) *markov.Model {
	base := []markov.Option{
		markov.WithContextBias(b.config.ContextBias),
		markov.WithEndingRetries(b.config.EndingRetries),
		markov.WithLogger(b.logger.With("component", "markov")),
	}
	return markov.NewModel(append(base, opts...)...)
}

// HandleMessage records a message observed in channel and returns a reply to it.
// Messages the bot sent itself only update the channel context and get no reply
// unless ReplyToSelf is set. The journal and the model see messages in the same
// order.
func (b *Bot) HandleMessage(ctx context.Context, channel, text string, self bool) (string, bool, error) {
	if text == "" {
		return "", false, nil
	}
	channel = sanitizeChannel(channel)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.journal != nil {
		err := b.journal.Append(ctx, corpus.Entry{Channel: channel, Body: text, ContextOnly: self})
		if err != nil {
			return "", false, fmt.Errorf("failed to journal message: %w", err)
		}
	}

	if self {
		b.model.PrimeContext(channel, text)
		if !b.config.ReplyToSelf {
			return "", false, nil
		}
	} else {
		b.model.RecordMessage(channel, text)
	}
	reply, ok := b.model.GenerateReply(text)
	if ok {
		b.logger.Debug("Generated reply", "channel", channel, "words", strings.Count(reply, markov.Separator)+1)
	}
	return reply, ok, nil
}

// Reply generates a reply to text without learning from it.
func (b *Bot) Reply(text string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model.GenerateReply(text)
}

// Stats returns the counters of the current model.
func (b *Bot) Stats() markov.ModelStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model.Stats()
}

// Dump writes the current model as JSON.
func (b *Bot) Dump(w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model.Dump(w)
}

// Journal returns the journal backing the bot, or nil.
func (b *Bot) Journal() *corpus.Journal {
	return b.journal
}

// ImportLegacy stores a legacy file in the journal, when there is one, and feeds it
// into the live model.
func (b *Bot) ImportLegacy(ctx context.Context, channel string, data []byte) (corpus.LoadStats, error) {
	channel = sanitizeChannel(channel)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.journal != nil {
		if _, err := b.journal.ImportLegacy(ctx, channel, bytes.NewReader(data), b.config.LegacyMagic); err != nil {
			return corpus.LoadStats{}, err
		}
	}
	return corpus.LoadLegacy(b.model, channel, bytes.NewReader(data), b.config.LegacyMagic)
}

// Rebuild builds a fresh model from the legacy directory and then the journal, and
// swaps it in once complete. The old model keeps serving replies meanwhile; rows
// journaled during the build are replayed under the lock right before the swap.
func (b *Bot) Rebuild(ctx context.Context, opts ...markov.Option) (RebuildStats, error) {
	start := time.Now()
	var stats RebuildStats
	model := b.newModel(opts...)

	if b.config.LegacyDir != "" {
		legacy, err := corpus.LoadLegacyDir(model, b.config.LegacyDir, b.config.LegacyMagic, b.config.SkipChannels)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			b.logger.Warn("Legacy directory not found, skipping", "dir", b.config.LegacyDir)
		case err != nil:
			return stats, fmt.Errorf("failed to load legacy directory: %w", err)
		default:
			stats.Legacy = legacy
			b.logger.Info("Legacy corpus loaded", "dir", b.config.LegacyDir, "channels", legacy.Channels, "messages", legacy.Messages, "context", legacy.Context)
		}
	}

	if b.journal != nil {
		replayed, err := b.journal.Replay(ctx, model)
		if err != nil {
			return stats, fmt.Errorf("failed to replay journal: %w", err)
		}
		stats.Journal = replayed
	}

	b.mu.Lock()
	if b.journal != nil {
		late, err := b.journal.ReplaySince(ctx, model, stats.Journal.LastID)
		if err != nil {
			b.mu.Unlock()
			return stats, fmt.Errorf("failed to replay journal: %w", err)
		}
		stats.Journal.Messages += late.Messages
		stats.Journal.Context += late.Context
		stats.Journal.LastID = late.LastID
	}
	summary := model.String()
	b.model = model
	b.mu.Unlock()

	stats.Duration = time.Since(start)
	b.logger.Info("Model rebuilt", "model", summary, "duration", stats.Duration)
	return stats, nil
}
