// Package textparse splits free-form generator output into discrete list
// items. Generators answer "one fact per line" prompts with numbered lists,
// bullets, headings and fenced blocks in varying combinations; the splitter
// normalizes all of them to plain item text.
package textparse

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Item is one entry extracted from generator output.
type Item struct {
	Line int // 1-indexed line the item starts on
	Text string
}

// Splitter segments generator output into items.
type Splitter struct {
	// KeepPreamble keeps unlisted lines that end in ':' such as
	// "Here are the facts:". They are dropped by default.
	KeepPreamble bool
	// IsNumberedItem overrides DefaultIsNumberedItem.
	IsNumberedItem func(line string) bool
}

// Items splits text with the default Splitter and returns the item texts.
func Items(text string) []string {
	items, _ := Splitter{}.Parse(strings.NewReader(text))
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

// Parse reads all of r and segments it.
func (s Splitter) Parse(r io.Reader) ([]Item, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("textparse: scan: %w", err)
	}
	isNum := s.IsNumberedItem
	if isNum == nil {
		isNum = DefaultIsNumberedItem
	}
	return s.segment(lines, isNum), nil
}

func (s Splitter) segment(lines []string, isNum func(string) bool) []Item {
	var (
		items []Item
		cur   *Item
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = clean(cur.Text)
		if cur.Text != "" {
			items = append(items, *cur)
		}
		cur = nil
	}
	start := func(lineNum int, text string) {
		flush()
		cur = &Item{Line: lineNum, Text: text}
	}

	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)

		// Fence markers are dropped; generators often wrap the whole list in
		// one, so the content inside is still parsed.
		if fencePrefix(line) != "" || trimmed == "" || IsHeading(line) || IsDecorator(line) {
			flush()
			continue
		}

		listed := isNum(line) || IsBullet(line)
		if listed {
			start(lineNum, StripListPrefix(line))
			continue
		}

		// Indented plain text continues the current list item.
		if cur != nil && IsIndented(line) {
			cur.Text += " " + trimmed
			continue
		}

		// "**Facts:**" is a preamble too once the emphasis is gone.
		if !s.KeepPreamble && strings.HasSuffix(clean(trimmed), ":") {
			flush()
			continue
		}

		// Unlisted lines stand alone, one item per line.
		start(lineNum, trimmed)
		flush()
	}
	flush()
	return items
}

// clean removes markdown emphasis and collapses surrounding whitespace.
func clean(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(s)
}

// fencePrefix returns the fence marker if line opens or closes a fenced block.
// Up to three leading spaces are allowed.
func fencePrefix(line string) string {
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	if leading >= 4 {
		return ""
	}
	stripped := line[leading:]
	for _, marker := range []byte{'`', '~'} {
		if len(stripped) < 3 || stripped[0] != marker {
			continue
		}
		count := 0
		for count < len(stripped) && stripped[count] == marker {
			count++
		}
		if count >= 3 {
			return stripped[:count]
		}
	}
	return ""
}

// numberedRe matches the list markers models put in front of facts and steps:
// "1. ", "2) ", "Step 3: ", "Fact 4. ", optionally wrapped in bold as in
// "**1.** ". Bare "N:" is not a marker since facts often open with a year or
// an amount followed by a colon.
var numberedRe = regexp.MustCompile(`^(?:\*\*|__)?(?:(?i:step|fact|reason)\s+\d{1,3}[.:)]|\d{1,3}[.)])(?:\*\*|__)?\s+`)

// bulletRe matches "- ", "* ", "+ ", "• " and the en dash some models use.
var bulletRe = regexp.MustCompile(`^[-*+•–]\s+`)

// DefaultIsNumberedItem reports whether line opens with a numbered marker.
func DefaultIsNumberedItem(line string) bool {
	return numberedRe.MatchString(strings.TrimSpace(line))
}

// IsBullet reports whether line opens with a bullet marker.
func IsBullet(line string) bool {
	return bulletRe.MatchString(strings.TrimSpace(line))
}

// IsIndented reports a continuation line: a leading tab or two spaces.
func IsIndented(line string) bool {
	return strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
}

// headingRe matches an ATX heading indented by at most three spaces.
var headingRe = regexp.MustCompile(`^ {0,3}#{1,6} `)

// IsHeading reports a markdown heading such as "## Facts".
func IsHeading(line string) bool {
	return headingRe.MatchString(line)
}

// IsDecorator reports a separator line: one of - = * _ ⸻ — repeated at least
// three times.
func IsDecorator(line string) bool {
	trimmed := strings.TrimSpace(line)
	if utf8.RuneCountInString(trimmed) < 3 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(trimmed)
	if !strings.ContainsRune("-=*_⸻—", first) {
		return false
	}
	return strings.Trim(trimmed, string(first)) == ""
}

// StripListPrefix removes a leading numbered or bullet marker.
func StripListPrefix(line string) string {
	trimmed := strings.TrimSpace(line)
	if loc := numberedRe.FindStringIndex(trimmed); loc != nil {
		return strings.TrimSpace(trimmed[loc[1]:])
	}
	if loc := bulletRe.FindStringIndex(trimmed); loc != nil {
		return strings.TrimSpace(trimmed[loc[1]:])
	}
	return trimmed
}
