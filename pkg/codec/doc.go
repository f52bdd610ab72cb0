// Package codec implements the fixed binary wire format shared with the
// injected peer: length-prefixed frames carrying a 16-bit tag and a
// schema-encoded payload of fixed-width little-endian fields.
//
// The layout is a pinned external contract. Encoding never widens or
// narrows numeric fields, and decoding fails with an error wrapping
// errors.ErrFormat on truncated or malformed input instead of panicking.
// Decoders ignore unknown trailing bytes so newer peers can append fields.
package codec
