package domain

import (
	"strings"
)

// RequiredSections lists the canonical document's section markers in order.
var RequiredSections = []string{
	"WHY", "MVP", "UX", "API", "NFR", "EDGE", "OOS", "ROAD", "RISK", "DONE",
}

// sectionTitles gives the heading text used when generating each section.
var sectionTitles = map[string]string{
	"WHY":  "Why (problem and motivation)",
	"MVP":  "MVP (must-have stories)",
	"UX":   "UX (user flows)",
	"API":  "API (interfaces and contracts)",
	"NFR":  "NFR (non-functional requirements)",
	"EDGE": "EDGE (edge cases)",
	"OOS":  "OOS (out of scope)",
	"ROAD": "ROAD (roadmap and milestones)",
	"RISK": "RISK (risks and mitigations)",
	"DONE": "DONE (definition of done)",
}

// SectionTitle returns the descriptive heading for a section marker.
func SectionTitle(marker string) string {
	if t, ok := sectionTitles[marker]; ok {
		return t
	}
	return marker
}

// derivedSections maps each derived type to the canonical sections it mirrors.
var derivedSections = map[DocumentType][]string{
	DocumentTypeSummary: {"MVP", "API", "ROAD"},
	DocumentTypePlan:    {"ROAD", "DONE"},
}

// SectionsFor returns the canonical sections propagated into a derived type.
func SectionsFor(t DocumentType) []string {
	return derivedSections[t]
}

// MissingSections returns the required markers absent from content.
func MissingSections(content string) []string {
	upper := strings.ToUpper(content)
	var missing []string
	for _, s := range RequiredSections {
		if !strings.Contains(upper, s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// ExtractSection returns the body of the markdown section whose heading
// starts with name, up to the next heading of the same or higher level.
// Lines inside fenced code blocks are never headings.
// It returns "" if no such heading exists.
func ExtractSection(content, name string) string {
	lines := strings.Split(content, "\n")
	start, level := -1, 0
	var fence codeFence

	for i, line := range lines {
		if fence.toggle(line) {
			continue
		}
		l, title := parseHeading(line)
		if l == 0 {
			continue
		}
		if start >= 0 {
			if l <= level {
				return strings.TrimSpace(strings.Join(lines[start:i], "\n"))
			}
			continue
		}
		if strings.HasPrefix(strings.ToUpper(stripOrdinal(title)), strings.ToUpper(name)) {
			start, level = i+1, l
		}
	}

	if start < 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

// codeFence tracks whether a line sits inside a ``` or ~~~ block.
// A block closes on a run of the same character at least as long as the
// one that opened it.
type codeFence struct {
	char byte
	size int
}

// toggle reports whether line is a fence or inside a fenced block,
// updating the state.
func (f *codeFence) toggle(line string) bool {
	trimmed := strings.TrimSpace(line)
	char, size := fenceRun(trimmed)

	if f.size == 0 {
		if size < 3 {
			return false
		}
		f.char, f.size = char, size
		return true
	}
	if char == f.char && size >= f.size && strings.TrimSpace(trimmed[size:]) == "" {
		f.char, f.size = 0, 0
	}
	return true
}

func fenceRun(s string) (byte, int) {
	if s == "" || (s[0] != '`' && s[0] != '~') {
		return 0, 0
	}
	n := 0
	for n < len(s) && s[n] == s[0] {
		n++
	}
	return s[0], n
}

func parseHeading(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || (level < len(trimmed) && trimmed[level] != ' ') {
		return 0, ""
	}
	return level, strings.TrimSpace(trimmed[level:])
}

// stripOrdinal removes a leading "3." or "3 " numbering from a heading title.
func stripOrdinal(title string) string {
	t := strings.TrimLeft(title, "0123456789")
	t = strings.TrimPrefix(t, ".")
	return strings.TrimSpace(t)
}
