// Package rut cleans, formats and validates Chilean national identifiers (RUT).
//
// A RUT is written NN.NNN.NNN-D where D is a check digit (0-9 or K) derived
// from a modulo-11 weighted sum of the body digits. Every function here is
// pure and total: no I/O, no shared state, no errors except from Parse, which
// builds a known-valid RUT value.
//
// The three derived values of an input are:
//
//	cleaned   := Clean(raw)       // digits and K only, uppercased
//	formatted := Format(cleaned)  // 12.345.678-5
//	valid     := Validate(cleaned)
//
// Evaluate applies the composed policy used by input hosts, where an empty
// value counts as valid because nothing has been typed yet.
package rut
