package engine

import (
	"strings"
	"unicode/utf8"
)

// utf8Carry buffers token bytes that end inside a multi-byte sequence.
// Complete text is released immediately; an incomplete tail is held until a
// later token completes it, or released lossily after maxHold consecutive
// steps that release nothing.
type utf8Carry struct {
	buf     []byte
	held    int
	maxHold int
}

// push appends raw token bytes and returns whatever text is now complete.
func (c *utf8Carry) push(b []byte) string {
	c.buf = append(c.buf, b...)
	emit, tail := splitIncomplete(c.buf)
	if len(tail) == 0 {
		c.held = 0
		out := strings.ToValidUTF8(string(emit), "\uFFFD")
		c.buf = c.buf[:0]
		return out
	}
	if len(emit) > 0 {
		c.held = 0
	}
	c.held++
	if c.maxHold > 0 && c.held >= c.maxHold {
		return c.flush()
	}
	out := strings.ToValidUTF8(string(emit), "\uFFFD")
	c.buf = append(c.buf[:0], tail...)
	return out
}

// flush releases everything held, replacing undecodable bytes.
func (c *utf8Carry) flush() string {
	out := strings.ToValidUTF8(string(c.buf), "\uFFFD")
	c.buf = c.buf[:0]
	c.held = 0
	return out
}

// splitIncomplete splits b before a trailing rune prefix that could still
// become valid. Invalid bytes that can never complete stay in emit.
func splitIncomplete(b []byte) (emit, tail []byte) {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 && !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		i += size
	}
	return b, nil
}
