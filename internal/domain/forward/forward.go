// Package forward defines the forward prompt: the continuity checkpoint
// persisted per working copy so in-flight work survives process death.
package forward

import (
	"bufio"
	"strconv"
	"strings"
	"time"
)

// Prompt is the recovery checkpoint for one working copy.
type Prompt struct {
	SessionID string    `json:"session_id"`
	Objective string    `json:"objective"`
	Status    string    `json:"status"`
	NextSteps []string  `json:"next_steps,omitempty"`
	Blockers  []string  `json:"blockers,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update carries a partial checkpoint update. Nil fields keep the previous
// value; non-nil fields replace it, including replacement with empty values.
type Update struct {
	SessionID *string
	Objective *string
	Status    *string
	NextSteps *[]string
	Blockers  *[]string
	Notes     *string
}

// Apply merges u into p field by field. UpdatedAt always advances.
func (p *Prompt) Apply(u Update) {
	if u.SessionID != nil {
		p.SessionID = *u.SessionID
	}
	if u.Objective != nil {
		p.Objective = *u.Objective
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.NextSteps != nil {
		p.NextSteps = append([]string(nil), (*u.NextSteps)...)
	}
	if u.Blockers != nil {
		p.Blockers = append([]string(nil), (*u.Blockers)...)
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	p.UpdatedAt = time.Now().UTC()
}

// PushStep appends a step to the tail of the next-steps queue.
func (p *Prompt) PushStep(step string) {
	p.NextSteps = append(p.NextSteps, step)
	p.UpdatedAt = time.Now().UTC()
}

// PopStep removes and returns the head of the next-steps queue.
// ok is false when the queue is empty.
func (p *Prompt) PopStep() (step string, ok bool) {
	if len(p.NextSteps) == 0 {
		return "", false
	}
	step = p.NextSteps[0]
	p.NextSteps = append([]string(nil), p.NextSteps[1:]...)
	p.UpdatedAt = time.Now().UTC()
	return step, true
}

const (
	headerMarker  = "# Forward Prompt"
	unsetValue    = "(none)"
	sectionPrefix = "## "
)

// section names in the textual rendering.
const (
	secSession   = "Session"
	secObjective = "Objective"
	secStatus    = "Status"
	secNext      = "Next Steps"
	secBlockers  = "Blockers"
	secNotes     = "Notes"
	secUpdated   = "Updated"
)

// ToText renders the checkpoint as a reviewable markdown document. Empty
// fields render as an explicit unset placeholder so the document is always
// complete on disk.
func ToText(p Prompt) string {
	var b strings.Builder
	b.WriteString(headerMarker)
	b.WriteString("\n\n")

	writeScalar := func(name, value string) {
		b.WriteString(sectionPrefix + name + "\n")
		if value == "" {
			b.WriteString(unsetValue + "\n")
		} else {
			b.WriteString(value + "\n")
		}
		b.WriteString("\n")
	}
	writeList := func(name string, items []string) {
		b.WriteString(sectionPrefix + name + "\n")
		if len(items) == 0 {
			b.WriteString(unsetValue + "\n")
		} else {
			for _, item := range items {
				b.WriteString(strings.TrimRight(strings.ReplaceAll(item, "\n", " "), " "))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	writeScalar(secSession, p.SessionID)
	writeScalar(secObjective, p.Objective)
	writeScalar(secStatus, p.Status)
	writeList(secNext, numbered(p.NextSteps))
	writeList(secBlockers, bulleted(p.Blockers))
	writeScalar(secNotes, p.Notes)
	writeScalar(secUpdated, p.UpdatedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// FromText parses a textual checkpoint back into its structured fields.
// Sections rendered with the unset placeholder parse back to empty values.
func FromText(text string) Prompt {
	var p Prompt

	sections := make(map[string][]string)
	var current string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, sectionPrefix) {
			current = strings.TrimPrefix(line, sectionPrefix)
			continue
		}
		if current == "" || strings.TrimSpace(line) == "" {
			continue
		}
		sections[current] = append(sections[current], line)
	}

	p.SessionID = scalar(sections[secSession])
	p.Objective = scalar(sections[secObjective])
	p.Status = scalar(sections[secStatus])
	p.NextSteps = unnumbered(listValues(sections[secNext]))
	p.Blockers = unbulleted(listValues(sections[secBlockers]))
	p.Notes = scalar(sections[secNotes])
	if ts, err := time.Parse(time.RFC3339, scalar(sections[secUpdated])); err == nil {
		p.UpdatedAt = ts
	}
	return p
}

func scalar(lines []string) string {
	joined := strings.TrimSpace(strings.Join(lines, "\n"))
	if joined == unsetValue {
		return ""
	}
	return joined
}

func listValues(lines []string) []string {
	if len(lines) == 1 && strings.TrimSpace(lines[0]) == unsetValue {
		return nil
	}
	return lines
}

func numbered(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.TrimSpace(item)
	}
	for i := range out {
		out[i] = strconv.Itoa(i+1) + ". " + out[i]
	}
	return out
}

func unnumbered(lines []string) []string {
	var out []string
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		if dot := strings.Index(s, ". "); dot > 0 && allDigits(s[:dot]) {
			s = s[dot+2:]
		}
		out = append(out, s)
	}
	return out
}

func bulleted(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = "- " + strings.TrimSpace(item)
	}
	return out
}

func unbulleted(lines []string) []string {
	var out []string
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		s = strings.TrimPrefix(s, "- ")
		out = append(out, s)
	}
	return out
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
