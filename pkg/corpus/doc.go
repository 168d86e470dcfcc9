/*
Package corpus feeds chat history into a reply model.

Two sources are supported. Legacy files hold one message per line, where a line
starting with a magic prefix marks a message the bot wrote itself; such lines only
set the channel context. The Journal is a SQLite table of the same messages,
appended to as they arrive and replayed in insertion order to rebuild a model on
startup.

Both sources write into a Sink, which *markov.Model satisfies:

	m := markov.NewModel()
	stats, err := corpus.LoadLegacyDir(m, "./data", magic, nil)
	if err != nil {
		// handle error
	}

	j, err := corpus.NewJournal(db)
	if err != nil {
		// handle error
	}
	defer j.Close()
	_, err = j.Replay(ctx, m)

Neither source stores the model itself. Models are always rebuilt from messages.
*/
package corpus
