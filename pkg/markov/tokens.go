package markov

import "strings"

// Separator is the only token boundary the model knows about. Messages are split on
// each single space, so repeated spaces produce empty tokens just like the chat
// text they came from.
const Separator = " "

// Opener is a possible first word of a reply, remembered together with the
// lowercased second-to-last word of the message it answered. HasContext is false
// when that message had a single word.
type Opener struct {
	Word       string `json:"word"`
	Context    string `json:"context,omitempty"`
	HasContext bool   `json:"has_context"`
}

func compareOpeners(a, b Opener) int {
	if c := strings.Compare(a.Word, b.Word); c != 0 {
		return c
	}
	if a.HasContext != b.HasContext {
		if a.HasContext {
			return 1
		}
		return -1
	}
	return strings.Compare(a.Context, b.Context)
}

// splitWords splits a message into its space separated tokens.
func splitWords(message string) []string {
	return strings.Split(message, Separator)
}

// tail returns the lowercased last word of words and, if there is one, the
// lowercased word before it.
func tail(words []string) (last string, secondLast string, hasSecondLast bool) {
	last = lower(words[len(words)-1])
	if len(words) > 1 {
		return last, lower(words[len(words)-2]), true
	}
	return last, "", false
}

// joinWords builds the final reply text.
func joinWords(words []string) string {
	return strings.Join(words, Separator)
}

func lower(word string) string {
	return strings.ToLower(word)
}
