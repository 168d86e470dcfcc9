package markov

import (
	"log/slog"
	"strings"
)

// badEndings are words a reply should not stop on.
var badEndings = map[string]struct{}{
	"about": {}, "as": {}, "from": {}, "a": {}, "he": {}, "be": {}, "to": {},
	"wanted": {}, "want": {}, "has": {}, "get": {}, "says": {}, "most": {},
	"mostly": {}, "got": {}, "she": {}, "just": {}, "we": {}, "they": {},
	"the": {}, "of": {}, "or": {}, "i": {}, "ur": {}, "with": {}, "your": {},
	"gonna": {}, "my": {}, "their": {}, "and": {}, "it's": {}, "its": {},
	"but": {}, "ima": {}, "what's": {}, "whats": {}, "wheres": {}, "where's": {},
	"whos": {}, "who's": {}, "an": {}, "it": {}, "our": {}, "hes": {}, "he's": {},
	"thats": {}, "that's": {}, "also": {}, "theres": {}, "there's": {}, "ive": {},
	"by": {}, "theyre": {},
}

// badEndingSuffixes disqualify any word that ends with them.
var badEndingSuffixes = []string{",", "&", "-", "'re", "'ll", "'d", "'ve"}

// IsValidEnd reports whether word reads as a natural last word for a reply.
// Articles, pronouns, conjunctions and similar words that leave a sentence
// hanging are rejected, as are words ending in a comma, ampersand, dash or an
// unfinished contraction. The check is case-insensitive.
func IsValidEnd(word string) bool {
	w := lower(word)
	if _, bad := badEndings[w]; bad {
		return false
	}
	for _, suffix := range badEndingSuffixes {
		if strings.HasSuffix(w, suffix) {
			return false
		}
	}
	return true
}

// GenerateReply builds a reply to message. It reports false when the model has
// not seen enough to answer: no opener was ever learned after a message ending
// like this one, or no message was ever recorded.
//
// The reply opens with a word that has followed messages ending in the same word,
// preferring openers learned after the same second-to-last word. It then follows
// word transitions until it reaches a length drawn from the observed message
// lengths or hits a word with no known follower, and finally takes up to a few
// extra steps while the last word is not a valid ending.
func (m *Model) GenerateReply(message string) (string, bool) {
	incoming := splitWords(message)
	if len(incoming) == 0 {
		return "", false
	}
	last, secondLast, hasSecondLast := tail(incoming)

	choices, ok := m.openers[last]
	if !ok {
		m.logger.Debug("No opener for message ending", slog.String("last_word", last))
		return "", false
	}

	var opener Opener
	if hasSecondLast {
		opener, ok = choices.ChooseBiased(m.rng, func(o Opener) int {
			if o.HasContext && o.Context == secondLast {
				return m.contextBias
			}
			return 1
		})
	} else {
		opener, ok = choices.Choose(m.rng)
	}
	if !ok {
		return "", false
	}

	length, ok := m.lengths.Choose(m.rng)
	if !ok {
		return "", false
	}

	words := []string{opener.Word}
	current := opener.Word
	for remaining := length - 1; remaining > 0; remaining-- {
		next, ok := m.step(current)
		if !ok {
			m.logger.Debug("Reply terminated due to dead-end",
				slog.String("last_word", current),
				slog.Int("target_length", length),
				slog.Int("generated_length", len(words)),
			)
			break
		}
		words = append(words, next)
		current = next
	}

	for retry := 0; retry < m.endingRetries && !IsValidEnd(current); retry++ {
		next, ok := m.step(current)
		if !ok {
			break
		}
		words = append(words, next)
		current = next
	}

	m.logger.Debug("Reply generated",
		slog.String("opener", opener.Word),
		slog.Int("target_length", length),
		slog.Int("generated_length", len(words)),
		slog.Bool("valid_end", IsValidEnd(current)),
	)

	return joinWords(words), true
}

// step samples the word that follows current.
func (m *Model) step(current string) (string, bool) {
	return m.words[lower(current)].Choose(m.rng)
}
