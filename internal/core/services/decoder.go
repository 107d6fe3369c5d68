package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// Record is one decoded structured line, tag removed.
type Record []string

// RecordSpec describes one structured line format.
type RecordSpec struct {
	// Tag is the optional leading marker ("CONFLICT").
	Tag string

	// Sentinel is the line meaning "nothing to report".
	Sentinel string

	// MinFields is the fewest fields a valid line has, tag excluded.
	MinFields int

	// MaxFields caps the field count; surplus separators stay in the last field.
	MaxFields int

	// Keys names the fields for encodings that carry names (JSON).
	Keys []string
}

// RecordDecoder turns generated text into records. Malformed lines are
// skipped, never fatal.
type RecordDecoder interface {
	Decode(text string, spec RecordSpec) []Record

	// Format renders the line layout the generator is asked to emit.
	Format(spec RecordSpec) string
}

// DecoderFor returns the decoder for a configured record format.
// Unknown formats fall back to DelimitedDecoder.
func DecoderFor(format domain.RecordFormat) RecordDecoder {
	if format == domain.RecordFormatJSONLines {
		return JSONLinesDecoder{}
	}
	return DelimitedDecoder{}
}

// Record formats understood by the engine.
var (
	conflictSpec = RecordSpec{
		Tag: conflictTag, Sentinel: noConflictsSentinel, MinFields: 5, MaxFields: 5,
		Keys: []string{"type", "severity", "section", "description", "suggestion"},
	}
	driftSpec = RecordSpec{
		Tag: driftTag, Sentinel: noDriftSentinel, MinFields: 5, MaxFields: 5,
		Keys: []string{"source", "target", "severity", "section", "description"},
	}
	storySpec = RecordSpec{
		Tag: storyTag, MinFields: 2, MaxFields: 3,
		Keys: []string{"title", "description", "priority"},
	}
)

// DelimitedDecoder reads pipe-delimited lines ("CONFLICT|a|b|..."), falling
// back to commas for lines without a pipe. The tag is optional.
type DelimitedDecoder struct{}

// Format implements RecordDecoder.
func (DelimitedDecoder) Format(spec RecordSpec) string {
	fields := make([]string, 0, len(spec.Keys)+1)
	fields = append(fields, spec.Tag)
	for _, k := range spec.Keys {
		fields = append(fields, "<"+k+">")
	}
	return strings.Join(fields, "|")
}

// Decode implements RecordDecoder.
func (DelimitedDecoder) Decode(text string, spec RecordSpec) []Record {
	var out []Record
	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		if line == "" || (spec.Sentinel != "" && strings.EqualFold(line, spec.Sentinel)) {
			continue
		}

		sep := "|"
		if !strings.Contains(line, sep) {
			sep = ","
		}
		parts := strings.Split(line, sep)
		if spec.Tag != "" && strings.EqualFold(strings.TrimSpace(parts[0]), spec.Tag) {
			parts = parts[1:]
		}
		if len(parts) < spec.MinFields {
			continue
		}
		if spec.MaxFields > 0 && len(parts) > spec.MaxFields {
			last := strings.Join(parts[spec.MaxFields-1:], sep)
			parts = append(parts[:spec.MaxFields-1], last)
		}

		rec := make(Record, len(parts))
		for i, p := range parts {
			rec[i] = strings.TrimSpace(p)
		}
		if rec[0] == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// cleanLine strips list bullets, code fences and table borders.
func cleanLine(raw string) string {
	line := strings.TrimSpace(raw)
	line = strings.Trim(line, "`")
	for _, bullet := range []string{"- ", "* ", "• "} {
		line = strings.TrimPrefix(line, bullet)
	}
	if strings.HasPrefix(line, "|") {
		line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	}
	return strings.TrimSpace(line)
}

// JSONLinesDecoder reads one JSON object (keyed by RecordSpec.Keys) or
// array of strings per line.
type JSONLinesDecoder struct{}

// Format implements RecordDecoder.
func (JSONLinesDecoder) Format(spec RecordSpec) string {
	fields := make([]string, len(spec.Keys))
	for i, k := range spec.Keys {
		fields[i] = fmt.Sprintf("%q: \"<%s>\"", k, k)
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

// Decode implements RecordDecoder.
func (JSONLinesDecoder) Decode(text string, spec RecordSpec) []Record {
	var out []Record
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		var rec Record
		switch {
		case strings.HasPrefix(line, "{"):
			rec = decodeObject(line, spec.Keys)
		case strings.HasPrefix(line, "["):
			rec = decodeArray(line)
		default:
			continue
		}
		if len(rec) < spec.MinFields {
			continue
		}
		complete := true
		for _, f := range rec[:spec.MinFields] {
			if f == "" {
				complete = false
			}
		}
		if !complete {
			continue
		}
		if spec.MaxFields > 0 && len(rec) > spec.MaxFields {
			rec = rec[:spec.MaxFields]
		}
		out = append(out, rec)
	}
	return out
}

func decodeObject(line string, keys []string) Record {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return nil
	}
	rec := make(Record, len(keys))
	for i, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			rec[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	// Drop trailing empty optional fields so MinFields applies to what was sent.
	for len(rec) > 0 && rec[len(rec)-1] == "" {
		rec = rec[:len(rec)-1]
	}
	return rec
}

func decodeArray(line string) Record {
	var arr []string
	if err := json.Unmarshal([]byte(line), &arr); err != nil {
		return nil
	}
	rec := make(Record, len(arr))
	for i, v := range arr {
		rec[i] = strings.TrimSpace(v)
	}
	return rec
}

// field returns rec[i] or "" when the record is shorter.
func (r Record) field(i int) string {
	if i < len(r) {
		return r[i]
	}
	return ""
}
