// Package commitmeta defines the structured metadata record embedded in
// commit messages and its versioned wire format.
//
// A commit message carries a human-readable title line followed by a
// delimited block:
//
//	Fix flaky retry loop
//
//	-----BEGIN FOUNDRY META v1-----
//	{ ...json record... }
//	-----END FOUNDRY META-----
//
// The block is located by scanning message lines for the exact delimiters and
// decoding the JSON between them, so titles or body text containing
// delimiter-like fragments mid-line cannot corrupt parsing. Commits without a
// block are a valid state (pre-existing or foreign commits) and parse to a
// placeholder record.
package commitmeta

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	beginMarker = "-----BEGIN FOUNDRY META v1-----"
	endMarker   = "-----END FOUNDRY META-----"
)

// Record is the structured metadata attached to a committed change. Once
// committed it is immutable; version-control history is the audit trail.
type Record struct {
	Intent         string    `json:"intent"`
	Implementation string    `json:"implementation,omitempty"`
	Expected       string    `json:"expected,omitempty"`
	Files          []string  `json:"files,omitempty"`
	Context        string    `json:"context,omitempty"`
	AgentID        string    `json:"agent_id,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// Placeholder returns the minimal record used for commits that carry no
// embedded block.
func Placeholder(title string) Record {
	return Record{Intent: title}
}

// Format renders the full commit message: title, blank line, delimited block.
func Format(title string, rec Record) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal commit metadata: %w", err)
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(beginMarker)
	b.WriteString("\n")
	b.Write(data)
	b.WriteString("\n")
	b.WriteString(endMarker)
	b.WriteString("\n")
	return b.String(), nil
}

// Parse extracts the metadata record from a commit message. The first
// returned value is the title line. found is false when the message carries
// no parseable block, in which case the record is a placeholder.
func Parse(message string) (title string, rec Record, found bool, err error) {
	sc := bufio.NewScanner(strings.NewReader(message))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) > 0 {
		title = lines[0]
	}

	begin, end := -1, -1
	for i, line := range lines {
		switch strings.TrimRight(line, " \t") {
		case beginMarker:
			if begin == -1 {
				begin = i
			}
		case endMarker:
			if begin != -1 && end == -1 {
				end = i
			}
		}
	}
	if begin == -1 || end == -1 || end <= begin {
		return title, Placeholder(title), false, nil
	}

	payload := strings.Join(lines[begin+1:end], "\n")
	if jsonErr := json.Unmarshal([]byte(payload), &rec); jsonErr != nil {
		// A malformed block degrades to the placeholder rather than failing
		// the caller; the commit itself is still usable history.
		return title, Placeholder(title), false, nil
	}
	return title, rec, true, nil
}
