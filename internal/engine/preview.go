package engine

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPreviewFields are tried in order on every record.
var DefaultPreviewFields = []string{"step_short_description", "step_name"}

// Extractor derives "Step N: ..." lines from a JSON buffer that is still
// being generated. It scans each appended byte once, tracking string state
// so separators inside values are ignored, and keeps only the bytes of the
// record in progress. A record is an object that is an array element. It
// never fails: a record it cannot read yields an
// empty description.
type Extractor struct {
	fields []string

	inString bool
	escaped  bool
	closing  bool // closed an array element object, waiting for ','
	nest     []byte

	cur  []byte
	done []string
}

// NewExtractor returns an Extractor reading the first present field of
// fields from every record. Nil means DefaultPreviewFields.
func NewExtractor(fields []string) *Extractor {
	if len(fields) == 0 {
		fields = DefaultPreviewFields
	}
	return &Extractor{fields: fields}
}

// Feed appends a fragment of generated text.
func (e *Extractor) Feed(fragment string) {
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if e.inString {
			switch {
			case e.escaped:
				e.escaped = false
			case c == '\\':
				e.escaped = true
			case c == '"':
				e.inString = false
			}
			e.cur = append(e.cur, c)
			continue
		}
		if e.closing {
			switch c {
			case ' ', '\t', '\n', '\r':
				e.cur = append(e.cur, c)
				continue
			case ',':
				e.closing = false
				e.finishRecord()
				continue
			default:
				e.closing = false
			}
		}
		switch c {
		case '"':
			e.inString = true
		case '{', '[':
			e.nest = append(e.nest, c)
		case '}', ']':
			if n := len(e.nest); n > 0 {
				e.nest = e.nest[:n-1]
			}
			if c == '}' && len(e.nest) > 0 && e.nest[len(e.nest)-1] == '[' {
				e.closing = true
			}
		}
		e.cur = append(e.cur, c)
	}
}

func (e *Extractor) finishRecord() {
	v, _ := extractField(e.cur, e.fields)
	e.done = append(e.done, v)
	e.cur = e.cur[:0]
}

// Lines returns one description per completed record, plus the record in
// progress once its field value is complete.
func (e *Extractor) Lines() []string {
	out := append([]string(nil), e.done...)
	if v, ok := extractField(e.cur, e.fields); ok {
		out = append(out, v)
	}
	return out
}

// Preview renders Lines as "Step N: <description>" rows.
func (e *Extractor) Preview() string {
	var b strings.Builder
	for i, l := range e.Lines() {
		fmt.Fprintf(&b, "Step %d: %s\n", i+1, l)
	}
	return b.String()
}

// Reset drops all state so the extractor can follow a new attempt.
func (e *Extractor) Reset() {
	e.inString, e.escaped, e.closing = false, false, false
	e.cur = e.cur[:0]
	e.nest = e.nest[:0]
	e.done = e.done[:0]
}

// extractField finds the first of fields present in rec and returns its
// string value. ok is false while the value is still open.
func extractField(rec []byte, fields []string) (string, bool) {
	for _, f := range fields {
		key := []byte(`"` + f + `"`)
		i := bytes.Index(rec, key)
		if i < 0 {
			continue
		}
		rest := rec[i+len(key):]
		j := 0
		for j < len(rest) && isSpace(rest[j]) {
			j++
		}
		if j >= len(rest) || rest[j] != ':' {
			return "", false
		}
		j++
		for j < len(rest) && isSpace(rest[j]) {
			j++
		}
		if j >= len(rest) || rest[j] != '"' {
			return "", false
		}
		j++
		start := j
		for esc := false; j < len(rest); j++ {
			switch {
			case esc:
				esc = false
			case rest[j] == '\\':
				esc = true
			case rest[j] == '"':
				raw := string(rest[start:j])
				if s, err := strconv.Unquote(`"` + raw + `"`); err == nil {
					return s, true
				}
				return raw, true
			}
		}
		return "", false
	}
	return "", false
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
