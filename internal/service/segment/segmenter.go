// Package segment turns an incremental text stream into speakable sentence units.
package segment

import (
	"strings"
	"unicode/utf8"
)

// Terminators lists the sentence-ending marks, CJK and Latin.
const Terminators = "。！？.!?"

// Unit is one sentence ready to be spoken.
type Unit struct {
	Seq     int    `json:"seq"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// Segmenter accumulates fragments of a single generation and cuts them at terminators.
// A completed sentence is released once more text follows it, so the last unit of a
// generation is always the one marked final by Flush. Not safe for concurrent use.
type Segmenter struct {
	buf strings.Builder
	seq int
}

// New creates an empty segmenter.
func New() *Segmenter {
	return &Segmenter{}
}

// Push appends fragment and returns the sentences it completed, in order.
func (s *Segmenter) Push(fragment string) []Unit {
	if fragment == "" {
		return nil
	}
	s.buf.WriteString(fragment)

	content := s.buf.String()
	var units []Unit
	for {
		end := sentenceEnd(content)
		if end < 0 || end == len(content) {
			break
		}
		units = append(units, s.next(content[:end], false))
		content = content[end:]
	}

	if len(units) > 0 {
		s.buf.Reset()
		s.buf.WriteString(content)
	}
	return units
}

// Flush emits whatever is left as the final unit. It reports false when nothing is buffered.
func (s *Segmenter) Flush() (Unit, bool) {
	rest := s.buf.String()
	s.buf.Reset()
	if rest == "" {
		return Unit{}, false
	}
	return s.next(rest, true), true
}

// Pending returns the buffered text without consuming it.
func (s *Segmenter) Pending() string {
	return s.buf.String()
}

// Emitted reports how many units have been produced so far.
func (s *Segmenter) Emitted() int {
	return s.seq
}

func (s *Segmenter) next(text string, final bool) Unit {
	s.seq++
	return Unit{Seq: s.seq, Text: text, IsFinal: final}
}

// sentenceEnd returns the byte offset just past the earliest terminator, or -1.
func sentenceEnd(content string) int {
	idx := strings.IndexAny(content, Terminators)
	if idx < 0 {
		return -1
	}
	_, size := utf8.DecodeRuneInString(content[idx:])
	return idx + size
}

// Split runs text through a fresh segmenter in one pass.
func Split(text string) []Unit {
	s := New()
	units := s.Push(text)
	if last, ok := s.Flush(); ok {
		units = append(units, last)
	}
	return units
}
