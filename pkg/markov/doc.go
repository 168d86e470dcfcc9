/*
Package markov provides a small, in-memory Markov model for chat bots that learn to
talk like the channels they sit in.

A Model is fed every message it sees with RecordMessage. It remembers the last
message of each channel, counts which word follows which, counts which words open
a message after another message ended a certain way, and keeps the distribution
of message lengths. GenerateReply then answers a message by picking an opener
that fits how the message ended, walking the word transitions to a sampled
length, and nudging the reply off words that make a poor ending.

Messages that should shape context but not vocabulary, such as the bot's own
replies, go through PrimeContext instead.

All sampling goes through Choices, a generic frequency-weighted table.
*/
package markov
