package markov

import (
	"go/build"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// newTestModel creates a Model with a fixed random source so that sampling tests
// are reproducible.
func newTestModel(t testing.TB, opts ...Option) *Model {
	t.Helper()
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(7, 11)))}, opts...)
	return NewModel(opts...)
}

// record feeds messages into one channel, in order.
func record(m *Model, channel string, messages ...string) {
	for _, msg := range messages {
		m.RecordMessage(channel, msg)
	}
}

var (
	benchmarkCorpus []string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files and turns their lines into chat-like
// messages for benchmarking.
func createBenchmarkCorpus() []string {
	corpusOnce.Do(func() {
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = []string{
					"this is a fallback corpus for benchmarking",
					"it is not very long but will prevent a crash",
				}
				return
			}
			for _, line := range strings.Split(string(content), "\n") {
				line = strings.Join(strings.Fields(line), " ")
				if line != "" {
					benchmarkCorpus = append(benchmarkCorpus, line)
				}
			}
		}
	})
	return benchmarkCorpus
}
