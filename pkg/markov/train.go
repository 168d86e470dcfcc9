package markov

import "log/slog"

// RecordMessage learns from a message posted in channel. The message becomes the
// channel's context, its length is counted, its first word is linked to the way
// the channel's previous message ended, and every pair of adjacent words is
// counted. Empty messages are ignored entirely.
func (m *Model) RecordMessage(channel, message string) {
	if message == "" {
		return
	}
	previous, hadPrevious := m.lastMessage[channel]
	m.lastMessage[channel] = message

	words := splitWords(message)
	if len(words) == 0 {
		return
	}
	m.lengths.Add(len(words))

	if hadPrevious {
		last, secondLast, ok := tail(splitWords(previous))
		opener := Opener{Word: words[0], Context: secondLast, HasContext: ok}
		choices, found := m.openers[last]
		if !found {
			choices = NewChoices[Opener]()
			m.openers[last] = choices
		}
		choices.Add(opener)
	}

	for i := 0; i+1 < len(words); i++ {
		key := lower(words[i])
		choices, found := m.words[key]
		if !found {
			choices = NewChoices[string]()
			m.words[key] = choices
		}
		choices.Add(words[i+1])
	}

	m.logger.Debug("Message recorded",
		slog.String("channel", channel),
		slog.Int("words", len(words)),
		slog.Bool("linked_to_previous", hadPrevious),
	)
}

// PrimeContext sets the channel's context without learning anything from message.
// The next recorded message in the channel is linked to how this one ended, so
// text the bot should not imitate, such as its own replies, still shapes which
// openers follow it.
func (m *Model) PrimeContext(channel, message string) {
	m.lastMessage[channel] = message
}
