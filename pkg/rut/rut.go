package rut

import "strings"

// InvalidMessage is shown next to an input holding a RUT whose check digit
// does not match its body.
const InvalidMessage = "RUT inválido - revise el dígito verificador"

// Result is the outcome of evaluating one raw input.
type Result struct {
	Cleaned   string `json:"cleaned"`
	Formatted string `json:"formatted"`
	Valid     bool   `json:"valid"`
}

// Empty reports whether nothing usable was typed.
func (r Result) Empty() bool { return r.Cleaned == "" }

// Message returns the inline validation message, or "" when valid.
func (r Result) Message() string {
	if r.Valid {
		return ""
	}
	return InvalidMessage
}

// Evaluate cleans raw and derives the formatted value and validity. An empty
// cleaned value is valid; anything else must carry a matching check digit.
func Evaluate(raw string) Result {
	cleaned := Clean(raw)
	if cleaned == "" {
		return Result{Valid: true}
	}
	return Result{
		Cleaned:   cleaned,
		Formatted: Format(cleaned),
		Valid:     Validate(cleaned),
	}
}

// Clean keeps only ASCII digits and the letter K (either case) and uppercases
// the result.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; {
		case c >= '0' && c <= '9', c == 'K':
			b.WriteByte(c)
		case c == 'k':
			b.WriteByte('K')
		}
	}
	return b.String()
}

// Format renders a cleaned RUT as 12.345.678-5. Values of length one or less
// are returned unchanged.
func Format(cleaned string) string {
	if len(cleaned) <= 1 {
		return cleaned
	}
	body, dv := split(cleaned)

	lead := len(body) % 3
	if lead == 0 {
		lead = 3
	}
	var b strings.Builder
	b.Grow(len(cleaned) + len(body)/3 + 1)
	b.WriteString(body[:lead])
	for i := lead; i < len(body); i += 3 {
		b.WriteByte('.')
		b.WriteString(body[i : i+3])
	}
	b.WriteByte('-')
	b.WriteByte(dv)
	return b.String()
}

// Validate reports whether the last character of cleaned is the check digit
// of the characters before it. Values shorter than two characters are never
// valid on their own.
func Validate(cleaned string) bool {
	if len(cleaned) < 2 {
		return false
	}
	body, dv := split(cleaned)
	want, ok := CheckDigit(body)
	if !ok {
		return false
	}
	return upper(dv) == want
}

// CheckDigit computes the modulo-11 verifier for a body of decimal digits.
// It returns false when body is empty or holds anything but digits.
func CheckDigit(body string) (byte, bool) {
	if body == "" {
		return 0, false
	}
	sum, mul := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		c := body[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		sum += int(c-'0') * mul
		if mul == 7 {
			mul = 2
		} else {
			mul++
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return '0', true
	case 10:
		return 'K', true
	default:
		return byte('0' + r), true
	}
}

func split(cleaned string) (body string, dv byte) {
	n := len(cleaned)
	return cleaned[:n-1], cleaned[n-1]
}

func upper(c byte) byte {
	if c == 'k' {
		return 'K'
	}
	return c
}
