package markov

import (
	"fmt"
	"testing"
)

func TestRecordMessageCountsTransitions(t *testing.T) {
	m := newTestModel(t)
	record(m, "c", "the cat sat", "the cat ran")

	the := m.Followers("the")
	if the.Count("cat") < 2 {
		t.Errorf(`Followers("the").Count("cat") = %d, want >= 2`, the.Count("cat"))
	}
	cat := m.Followers("cat")
	if cat.Count("sat") != 1 || cat.Count("ran") != 1 {
		t.Errorf(`Followers("cat") = sat:%d ran:%d, want 1 and 1`, cat.Count("sat"), cat.Count("ran"))
	}
	if m.Followers("sat") != nil {
		t.Error("the last word of a message should have no followers")
	}
	if got := m.Lengths().Count(3); got != 2 {
		t.Errorf("Lengths().Count(3) = %d, want 2", got)
	}
}

func TestRecordMessageFoldsKeysButKeepsValues(t *testing.T) {
	m := newTestModel(t)
	record(m, "c", "Hello World", "hello there")

	followers := m.Followers("HELLO")
	if followers.Count("World") != 1 {
		t.Errorf(`Count("World") = %d, want 1`, followers.Count("World"))
	}
	if followers.Count("world") != 0 {
		t.Error("sampled values should keep their case")
	}
	if followers.Count("there") != 1 {
		t.Errorf(`Count("there") = %d, want 1`, followers.Count("there"))
	}
}

func TestRecordMessageEmptyIsNoop(t *testing.T) {
	m := newTestModel(t)
	m.RecordMessage("c", "hello there")
	before := m.Stats()

	m.RecordMessage("c", "")

	if msg, _ := m.LastMessage("c"); msg != "hello there" {
		t.Errorf("LastMessage = %q, want %q", msg, "hello there")
	}
	if after := m.Stats(); after != before {
		t.Errorf("Stats changed from %+v to %+v", before, after)
	}
	if _, ok := m.LastMessage("fresh"); ok {
		t.Fatal("unexpected context for a fresh channel")
	}
	m.RecordMessage("fresh", "")
	if _, ok := m.LastMessage("fresh"); ok {
		t.Error("an empty message should not create context")
	}
}

func TestRecordMessageLearnsOpeners(t *testing.T) {
	testCases := []struct {
		name     string
		previous string
		message  string
		key      string
		want     Opener
	}{
		{
			name:     "previous message with context word",
			previous: "I want pizza",
			message:  "pizza is great",
			key:      "pizza",
			want:     Opener{Word: "pizza", Context: "want", HasContext: true},
		},
		{
			name:     "single word previous message",
			previous: "hi",
			message:  "Yo there",
			key:      "hi",
			want:     Opener{Word: "Yo"},
		},
		{
			name:     "keys are lowercased",
			previous: "I LOVE Pizza",
			message:  "Same",
			key:      "pizza",
			want:     Opener{Word: "Same", Context: "love", HasContext: true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(t)
			record(m, "c", tc.previous, tc.message)

			openers := m.Openers(tc.key)
			if openers.Count(tc.want) != 1 {
				t.Errorf("Openers(%q).Count(%+v) = %d, want 1", tc.key, tc.want, openers.Count(tc.want))
			}
			if openers.Total() != 1 {
				t.Errorf("Openers(%q).Total() = %d, want 1", tc.key, openers.Total())
			}
		})
	}
}

func TestRecordMessageFirstMessageHasNoOpener(t *testing.T) {
	m := newTestModel(t)
	m.RecordMessage("c", "just me")
	if s := m.Stats(); s.OpenerKeys != 0 || s.OpenerTotal != 0 {
		t.Errorf("first message in a channel learned openers: %+v", s)
	}
}

// TestPrimeContextParticipatesAsPrevious pins down that primed text counts as the
// previous message for opener learning while teaching no vocabulary of its own.
func TestPrimeContextParticipatesAsPrevious(t *testing.T) {
	m := newTestModel(t)
	m.PrimeContext("c", "hello there")

	if msg, _ := m.LastMessage("c"); msg != "hello there" {
		t.Fatalf("LastMessage = %q after PrimeContext", msg)
	}
	if s := m.Stats(); s.Vocabulary != 0 || s.Messages != 0 {
		t.Fatalf("PrimeContext changed the vocabulary: %+v", s)
	}

	m.RecordMessage("c", "foo bar")

	want := Opener{Word: "foo", Context: "hello", HasContext: true}
	if got := m.Openers("there").Count(want); got != 1 {
		t.Errorf(`Openers("there").Count(%+v) = %d, want 1`, want, got)
	}
	if m.Followers("hello") != nil {
		t.Error("primed text should not produce word transitions")
	}
	if got := m.Lengths().Total(); got != 1 {
		t.Errorf("Lengths().Total() = %d, want 1", got)
	}
}

func TestChannelsKeepSeparateContext(t *testing.T) {
	m := newTestModel(t)
	m.RecordMessage("a", "left side")
	m.RecordMessage("b", "right side")
	m.RecordMessage("a", "reply")

	if got := m.Openers("side").Count(Opener{Word: "reply", Context: "left", HasContext: true}); got != 1 {
		t.Errorf("opener learned from the wrong channel, count = %d", got)
	}
	if got := m.Openers("side").Count(Opener{Word: "reply", Context: "right", HasContext: true}); got != 0 {
		t.Errorf("channel b leaked into channel a, count = %d", got)
	}
	if ids := m.Channels(); fmt.Sprint(ids) != "[a b]" {
		t.Errorf("Channels() = %v, want [a b]", ids)
	}
}

func TestRecordMessageSplitsOnSingleSpaces(t *testing.T) {
	m := newTestModel(t)
	m.RecordMessage("c", "a  b")

	if got := m.Lengths().Count(3); got != 1 {
		t.Errorf("Lengths().Count(3) = %d, want 1", got)
	}
	if got := m.Followers("a").Count(""); got != 1 {
		t.Errorf(`Followers("a").Count("") = %d, want 1`, got)
	}
	if got := m.Followers("").Count("b"); got != 1 {
		t.Errorf(`Followers("").Count("b") = %d, want 1`, got)
	}
}

func BenchmarkRecordMessage(b *testing.B) {
	corpus := createBenchmarkCorpus()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := NewModel()
		for _, line := range corpus {
			m.RecordMessage("bench", line)
		}
	}
}
