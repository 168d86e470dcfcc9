package markov

// ModelStats holds aggregated counts for a Model.
type ModelStats struct {
	Channels        int `json:"channels"`         // Channels with stored context
	Vocabulary      int `json:"vocabulary"`       // Distinct lowercased words that have a follower
	Transitions     int `json:"transitions"`      // Sum of all word transition counts
	OpenerKeys      int `json:"opener_keys"`      // Distinct closing words with learned openers
	OpenerTotal     int `json:"opener_total"`     // Sum of all opener counts
	Messages        int `json:"messages"`         // Number of recorded messages
	DistinctLengths int `json:"distinct_lengths"` // Number of distinct message lengths seen
}

// Stats returns a snapshot of the model's size.
func (m *Model) Stats() ModelStats {
	stats := ModelStats{
		Channels:        len(m.lastMessage),
		Vocabulary:      len(m.words),
		OpenerKeys:      len(m.openers),
		Messages:        m.lengths.Total(),
		DistinctLengths: m.lengths.Len(),
	}
	for _, choices := range m.words {
		stats.Transitions += choices.Total()
	}
	for _, choices := range m.openers {
		stats.OpenerTotal += choices.Total()
	}
	return stats
}
