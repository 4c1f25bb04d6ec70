// Package mapper merges a forced-alignment document with the original lyrics
// text into a line-structured, time-aligned transcript.
package mapper

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lyrasync/backend/internal/jobs"
)

// tokenCutset is stripped from both ends of lyric and alignment tokens
// before comparison
const tokenCutset = ".,!?;:"

// AlignmentEntry is one word interval from the aligner: [start, end, word].
// Start and End are null when the aligner produced no timing for the word.
type AlignmentEntry struct {
	Start *float64
	End   *float64
	Word  string
}

// UnmarshalJSON decodes the aligner's 3-element array form
func (e *AlignmentEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("alignment entry must have 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Start); err != nil {
		return fmt.Errorf("alignment entry start: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.End); err != nil {
		return fmt.Errorf("alignment entry end: %w", err)
	}
	if err := json.Unmarshal(raw[2], &e.Word); err != nil {
		return fmt.Errorf("alignment entry word: %w", err)
	}
	return nil
}

// AlignmentDocument is the aligner's on-disk output shape
type AlignmentDocument struct {
	Tiers struct {
		Words struct {
			Entries []AlignmentEntry `json:"entries"`
		} `json:"words"`
	} `json:"tiers"`
}

// lyricLine is one non-blank lyrics line with its normalized tokens
type lyricLine struct {
	text   string
	tokens []string
}

// alignedWord is a success entry with its normalized form precomputed
type alignedWord struct {
	entry AlignmentEntry
	norm  string
}

// normalizeToken lowercases a token and strips surrounding punctuation
func normalizeToken(token string) string {
	return strings.Trim(strings.ToLower(token), tokenCutset)
}

// MapTranscript reads the alignment JSON and the lyrics file and produces
// the canonical line-structured transcript. It returns an error only when a
// file is unreadable or the alignment does not decode as an alignment
// document (invalid JSON, or an entry that is not a [start, end, word]
// triple of the right types); an empty result
// with a nil error means the lyrics contained no tokenizable lines.
func MapTranscript(alignmentPath, lyricsPath string) ([]jobs.MappedLine, error) {
	entries, err := readAlignment(alignmentPath)
	if err != nil {
		return nil, err
	}

	lines, err := readLyrics(lyricsPath)
	if err != nil {
		return nil, err
	}

	return mapLines(entries, lines), nil
}

// readAlignment loads the success entries from tiers.words.entries.
// Entries whose normalized word is empty carry no lexical content and are
// dropped before matching.
func readAlignment(path string) ([]alignedWord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alignment file: %w", err)
	}

	var doc AlignmentDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode alignment JSON: %w", err)
	}

	words := make([]alignedWord, 0, len(doc.Tiers.Words.Entries))
	for _, entry := range doc.Tiers.Words.Entries {
		norm := normalizeToken(entry.Word)
		if norm == "" {
			continue
		}
		words = append(words, alignedWord{entry: entry, norm: norm})
	}
	return words, nil
}

// readLyrics splits the lyrics file into non-blank lines and tokenizes each.
// Lines whose tokens all normalize to empty are dropped.
func readLyrics(path string) ([]lyricLine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lyrics file: %w", err)
	}

	var lines []lyricLine
	for _, line := range strings.Split(string(raw), "\n") {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		var tokens []string
		for _, field := range strings.Fields(text) {
			if token := normalizeToken(field); token != "" {
				tokens = append(tokens, token)
			}
		}
		if len(tokens) == 0 {
			continue
		}
		lines = append(lines, lyricLine{text: text, tokens: tokens})
	}
	return lines, nil
}

// mapLines matches lyric tokens against alignment entries with a single
// monotonic cursor. The cursor only moves forward across lines: a matched
// token consumes entries up to and including its match, a missed token
// consumes nothing. This keeps runs of repeated words bound to their first
// forward occurrence and stops one out-of-vocabulary word from eating
// through later alignments.
func mapLines(entries []alignedWord, lines []lyricLine) []jobs.MappedLine {
	mapped := make([]jobs.MappedLine, 0, len(lines))
	cursor := 0

	for _, line := range lines {
		words := make([]jobs.MappedWord, 0, len(line.tokens))
		next := cursor

		for _, token := range line.tokens {
			found := -1
			for k := next; k < len(entries); k++ {
				if entries[k].norm == token {
					found = k
					break
				}
			}
			if found >= 0 {
				// Keep the aligner's casing on matched words
				words = append(words, jobs.MappedWord{
					Word:  entries[found].entry.Word,
					Start: entries[found].entry.Start,
					End:   entries[found].entry.End,
				})
				next = found + 1
			} else {
				words = append(words, jobs.MappedWord{Word: token})
			}
		}
		cursor = next

		if len(words) == 0 {
			// Tokenization guarantees at least one token per kept line,
			// so this guard is defensive only.
			continue
		}

		start, end := lineEnvelope(words)
		mapped = append(mapped, jobs.MappedLine{
			LineText:      line.text,
			Words:         words,
			LineStartTime: start,
			LineEndTime:   end,
		})
	}
	return mapped
}

// lineEnvelope computes the min start and max end over words with known
// timing. Both are nil when no word in the line carries timing.
func lineEnvelope(words []jobs.MappedWord) (*float64, *float64) {
	var start, end *float64
	for _, w := range words {
		if w.Start != nil && (start == nil || *w.Start < *start) {
			v := *w.Start
			start = &v
		}
		if w.End != nil && (end == nil || *w.End > *end) {
			v := *w.End
			end = &v
		}
	}
	return start, end
}
