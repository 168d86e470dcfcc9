package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrIngestion is returned, wrapped, when a legacy source cannot be read.
var ErrIngestion = errors.New("corpus ingestion failed")

// maxLineLength bounds a single message line. Lines longer than this fail the load.
const maxLineLength = 1 << 20

// Sink receives messages in the order they were observed.
type Sink interface {
	RecordMessage(channel, message string)
	PrimeContext(channel, message string)
}

// LoadStats counts what a load fed into a Sink.
type LoadStats struct {
	Channels int `json:"channels"`
	Messages int `json:"messages"`
	Context  int `json:"context"`
}

func (s *LoadStats) add(o LoadStats) {
	s.Channels += o.Channels
	s.Messages += o.Messages
	s.Context += o.Context
}

// parseLine splits a legacy line into its body and whether it is context only.
// Only a leading magic prefix is removed. An empty magic marks nothing as context.
func parseLine(line, magic string) (string, bool) {
	if magic != "" && strings.HasPrefix(line, magic) {
		return line[len(magic):], true
	}
	return line, false
}

// scanLines calls fn for every line of r with the magic prefix already resolved.
func scanLines(r io.Reader, magic string, fn func(body string, contextOnly bool) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		body, contextOnly := parseLine(scanner.Text(), magic)
		if err := fn(body, contextOnly); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// LoadLegacy reads one message per line from r into sink under channel. Lines
// starting with magic are stripped of it and passed to PrimeContext, all others
// go to RecordMessage unchanged.
func LoadLegacy(sink Sink, channel string, r io.Reader, magic string) (LoadStats, error) {
	stats := LoadStats{Channels: 1}
	err := scanLines(r, magic, func(body string, contextOnly bool) error {
		if contextOnly {
			sink.PrimeContext(channel, body)
			stats.Context++
		} else {
			sink.RecordMessage(channel, body)
			stats.Messages++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("%w: reading channel %q: %w", ErrIngestion, channel, err)
	}
	return stats, nil
}

// LoadLegacyFile loads the file at path as the history of channel.
func LoadLegacyFile(sink Sink, channel, path, magic string) (LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadStats{}, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return LoadLegacy(sink, channel, f, magic)
}

// LegacyFiles lists the *.txt files of dir keyed by channel id, which is the file
// name without its extension. Channels listed in skip are left out.
func LegacyFiles(dir string, skip []string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	files := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".txt" {
			continue
		}
		channel := strings.TrimSuffix(name, ".txt")
		if slices.Contains(skip, channel) {
			continue
		}
		files[channel] = filepath.Join(dir, name)
	}
	return files, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// LoadLegacyDir loads every legacy file in dir. Files are loaded in channel order
// so that repeated loads of the same directory build the same model.
func LoadLegacyDir(sink Sink, dir, magic string, skip []string) (LoadStats, error) {
	files, err := LegacyFiles(dir, skip)
	if err != nil {
		return LoadStats{}, err
	}
	var total LoadStats
	for _, channel := range sortedKeys(files) {
		stats, err := LoadLegacyFile(sink, channel, files[channel], magic)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
