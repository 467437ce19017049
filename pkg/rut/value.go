package rut

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty indicates the input held no digits or K.
	ErrEmpty = errors.New("rut: empty")
	// ErrMalformed indicates the body is not all digits or is too short.
	ErrMalformed = errors.New("rut: malformed")
	// ErrCheckDigit indicates the verifier does not match the body.
	ErrCheckDigit = errors.New("rut: check digit mismatch")
)

// RUT is a validated identifier.
//
// Invariants:
//   - body is one or more decimal digits
//   - verifier is the check digit of body
type RUT struct {
	body     string
	verifier byte
}

// Parse cleans s and returns the RUT it denotes.
func Parse(s string) (RUT, error) {
	cleaned := Clean(s)
	if cleaned == "" {
		return RUT{}, ErrEmpty
	}
	if len(cleaned) < 2 {
		return RUT{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	body, dv := split(cleaned)
	want, ok := CheckDigit(body)
	if !ok {
		return RUT{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	if dv != want {
		return RUT{}, fmt.Errorf("%w: %q", ErrCheckDigit, s)
	}
	return RUT{body: body, verifier: dv}, nil
}

// MustParse is Parse that panics on error. Use only in tests or with
// literals known to be valid.
func MustParse(s string) RUT {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// FromBody builds the RUT for body by computing its verifier.
func FromBody(body string) (RUT, error) {
	dv, ok := CheckDigit(body)
	if !ok {
		return RUT{}, fmt.Errorf("%w: %q", ErrMalformed, body)
	}
	return RUT{body: body, verifier: dv}, nil
}

// String returns the formatted RUT.
func (r RUT) String() string {
	if r.IsZero() {
		return ""
	}
	return Format(r.Cleaned())
}

// Cleaned returns body and verifier without separators.
func (r RUT) Cleaned() string {
	if r.IsZero() {
		return ""
	}
	return r.body + string(r.verifier)
}

// Body returns the digits before the verifier.
func (r RUT) Body() string { return r.body }

// Verifier returns the check digit, '0'-'9' or 'K'.
func (r RUT) Verifier() byte { return r.verifier }

// IsZero reports whether r is the zero value.
func (r RUT) IsZero() bool { return r.body == "" }

// MarshalText encodes r in its formatted form.
func (r RUT) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses any accepted spelling of a RUT.
func (r *RUT) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
