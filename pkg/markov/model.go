package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
)

const (
	// DefaultContextBias is how much more likely an opener is picked when it was
	// learned after a message with the same second-to-last word as the incoming one.
	DefaultContextBias = 4
	// DefaultEndingRetries bounds the extra steps taken to move a reply off a word
	// that makes a poor ending.
	DefaultEndingRetries = 5
)

// Model holds everything learned from a stream of chat messages: the last message
// of every channel, which words open a message after a given closing word, which
// word follows which, and how long messages tend to be.
//
// A Model is not safe for concurrent use. Callers sharing one across goroutines
// must serialize access themselves.
type Model struct {
	lastMessage map[string]string
	openers     map[string]*Choices[Opener]
	words       map[string]*Choices[string]
	lengths     *Choices[int]

	rng           *rand.Rand
	contextBias   int
	endingRetries int
	logger        *slog.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithRand sets the random source used for sampling. By default the package-level
// source from math/rand/v2 is used.
func WithRand(r *rand.Rand) Option {
	return func(m *Model) { m.rng = r }
}

// WithContextBias sets the weight multiplier for openers whose remembered context
// matches the incoming message. Values below 1 fall back to DefaultContextBias.
func WithContextBias(bias int) Option {
	return func(m *Model) {
		if bias >= 1 {
			m.contextBias = bias
		}
	}
}

// WithEndingRetries sets how many extra words may be appended to avoid a bad
// ending. Negative values fall back to DefaultEndingRetries.
func WithEndingRetries(n int) Option {
	return func(m *Model) {
		if n >= 0 {
			m.endingRetries = n
		}
	}
}

// WithLogger sets the logger. See SetLogger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) { m.SetLogger(logger) }
}

// NewModel returns an empty model.
func NewModel(opts ...Option) *Model {
	m := &Model{
		lastMessage:   make(map[string]string),
		openers:       make(map[string]*Choices[Opener]),
		words:         make(map[string]*Choices[string]),
		lengths:       NewChoices[int](),
		contextBias:   DefaultContextBias,
		endingRetries: DefaultEndingRetries,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetLogger sets the logger for the Model. By default, all logs are discarded.
func (m *Model) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// LastMessage returns the most recent message stored for a channel.
func (m *Model) LastMessage(channel string) (string, bool) {
	msg, ok := m.lastMessage[channel]
	return msg, ok
}

// Followers returns the table of words seen after word, matched case-insensitively.
// It returns nil if word was never followed by anything.
func (m *Model) Followers(word string) *Choices[string] {
	return m.words[lower(word)]
}

// Openers returns the table of reply openers learned after messages ending in word.
func (m *Model) Openers(word string) *Choices[Opener] {
	return m.openers[lower(word)]
}

// Lengths returns the distribution of observed message lengths in words.
func (m *Model) Lengths() *Choices[int] {
	return m.lengths
}

// String returns a short summary meant for logs and debugging.
func (m *Model) String() string {
	s := m.Stats()
	return fmt.Sprintf("markov.Model{channels: %d, vocabulary: %d, transitions: %d, openers: %d, messages: %d}",
		s.Channels, s.Vocabulary, s.Transitions, s.OpenerTotal, s.Messages)
}

// snapshot is the inspection form of a model written by Dump.
type snapshot struct {
	LastMessage map[string]string             `json:"last_message"`
	Openers     map[string][]weighted[Opener] `json:"openers"`
	Words       map[string][]weighted[string] `json:"words"`
	Lengths     []weighted[int]               `json:"lengths"`
	Stats       ModelStats                    `json:"stats"`
}

// Dump writes every table of the model as indented JSON. It exists for inspection;
// models are rebuilt by replaying messages, never loaded from a dump.
func (m *Model) Dump(w io.Writer) error {
	snap := snapshot{
		LastMessage: m.lastMessage,
		Openers:     make(map[string][]weighted[Opener], len(m.openers)),
		Words:       make(map[string][]weighted[string], len(m.words)),
		Lengths:     sortedCounts(m.lengths),
		Stats:       m.Stats(),
	}
	for key, choices := range m.openers {
		var list []weighted[Opener]
		choices.Each(compareOpeners, func(o Opener, count int) {
			list = append(list, weighted[Opener]{Value: o, Count: count})
		})
		snap.Openers[key] = list
	}
	for key, choices := range m.words {
		snap.Words[key] = sortedCounts(choices)
	}

	m.logger.Debug("Model dumped",
		slog.Int("opener_keys", len(snap.Openers)),
		slog.Int("word_keys", len(snap.Words)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snap)
}

// Channels returns the ids of every channel with stored context, sorted.
func (m *Model) Channels() []string {
	ids := make([]string, 0, len(m.lastMessage))
	for id := range m.lastMessage {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
