// Package pattern implements single-slot name patterns.
//
// A pattern is literal text with one placeholder for a string argument:
//
//	{0}        replaced by the argument
//	'...'      quoted text, braces inside are literal
//	''         a literal single quote
//
// Only argument index 0 is accepted and format types such as {0,number} are
// rejected, since the argument is always a simple name.
package pattern

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFormat is matched by every error returned for a malformed pattern.
var ErrFormat = errors.New("malformed name pattern")

// Error describes a malformed pattern.
type Error struct {
	Pattern string
	Offset  int // byte offset of the offending element
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pattern %q: %s at offset %d", e.Pattern, e.Reason, e.Offset)
}

// Unwrap returns ErrFormat.
func (e *Error) Unwrap() error { return ErrFormat }

// Pattern is a compiled name pattern.
type Pattern struct {
	src   string
	parts []part
}

type part struct {
	text string
	slot bool
}

// Compile parses src.
//
// An index other than 0, such as {1}, is a FormatError. It is not printed
// literally the way a general message formatter prints an index it has no
// argument for.
func Compile(src string) (*Pattern, error) {
	p := &Pattern{src: src}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.parts = append(p.parts, part{text: lit.String()})
			lit.Reset()
		}
	}

	inQuote := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\'':
			if i+1 < len(src) && src[i+1] == '\'' {
				lit.WriteByte('\'')
				i++
				continue
			}
			inQuote = !inQuote
		case inQuote:
			lit.WriteByte(c)
		case c == '{':
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				return nil, &Error{Pattern: src, Offset: i, Reason: "unmatched braces"}
			}
			if err := checkIndex(src, i, src[i+1:i+1+end]); err != nil {
				return nil, err
			}
			flush()
			p.parts = append(p.parts, part{slot: true})
			i += end + 1
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return p, nil
}

func checkIndex(src string, offset int, body string) error {
	if strings.ContainsRune(body, ',') {
		return &Error{Pattern: src, Offset: offset, Reason: "format types are not supported"}
	}
	if body == "" {
		return &Error{Pattern: src, Offset: offset, Reason: "missing argument index"}
	}
	n, err := strconv.Atoi(body)
	switch {
	case err != nil:
		return &Error{Pattern: src, Offset: offset, Reason: fmt.Sprintf("can't parse argument number %q", body)}
	case n < 0:
		return &Error{Pattern: src, Offset: offset, Reason: fmt.Sprintf("negative argument number %d", n)}
	case n != 0:
		return &Error{Pattern: src, Offset: offset, Reason: fmt.Sprintf("argument index %d out of range, only {0} is available", n)}
	}
	return nil
}

// Apply substitutes arg into every slot.
func (p *Pattern) Apply(arg string) string {
	var sb strings.Builder
	for _, pt := range p.parts {
		if pt.slot {
			sb.WriteString(arg)
		} else {
			sb.WriteString(pt.text)
		}
	}
	return sb.String()
}

// HasSlot reports whether the pattern references its argument at all.
func (p *Pattern) HasSlot() bool {
	for _, pt := range p.parts {
		if pt.slot {
			return true
		}
	}
	return false
}

// String returns the source pattern.
func (p *Pattern) String() string { return p.src }

// Format compiles src and applies it to arg.
func Format(src, arg string) (string, error) {
	p, err := Compile(src)
	if err != nil {
		return "", err
	}
	return p.Apply(arg), nil
}

// Validate reports whether src is a well-formed pattern.
func Validate(src string) error {
	_, err := Compile(src)
	return err
}
