// Package lzw implements the Blitzortung feed's LZW text encoding.
//
// The feed does not use a standard LZW container (no clear code, no EOF
// code), so neither compress/lzw nor any off-the-shelf codec can read it.
// Two code carriers share one dictionary core:
//
//   - the character carrier used on the wire: one code per character, where
//     characters below 256 are literals and dictionary entries are assigned
//     from 256 upward (DecodeString / EncodeString);
//   - a bit-packed carrier with variable code width over an explicit base
//     alphabet (DecodeBits / EncodeBits), used for archived payloads and by
//     the synthetic feed generator.
//
// Every payload is compressed independently upstream; the dictionary never
// carries state from one message to the next.
package lzw

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
	"unicode/utf8"
)

var (
	// ErrCorrupt is the class of all decode failures; match with errors.Is.
	ErrCorrupt = errors.New("lzw: corrupt stream")

	// ErrUnknownCode reports a code that is not yet in the dictionary and is
	// not the one not-yet-inserted code the algorithm permits.
	ErrUnknownCode = fmt.Errorf("%w: unknown code", ErrCorrupt)

	// ErrTruncated reports input that ends mid-code with non-zero bits left.
	ErrTruncated = fmt.Errorf("%w: truncated mid-code", ErrCorrupt)
)

// dict is the decode table for a single payload. Literal codes are resolved
// by base; dynamic entries are appended strictly in increasing code order,
// one per decoded step after the first.
type dict struct {
	base    func(code int) (string, bool)
	entries map[int]string
	next    int
	prev    string
}

func newDict(base func(code int) (string, bool), firstDynamic int) *dict {
	return &dict{
		base:    base,
		entries: make(map[int]string),
		next:    firstDynamic,
	}
}

// step resolves one code, records the implied dictionary entry, and returns
// the decoded phrase.
func (d *dict) step(code int) (string, error) {
	var entry string
	switch {
	case code >= 0 && code < d.next:
		if s, ok := d.base(code); ok {
			entry = s
		} else if s, ok := d.entries[code]; ok {
			entry = s
		} else {
			return "", fmt.Errorf("%w (%d)", ErrUnknownCode, code)
		}
	case code == d.next && d.prev != "":
		// The one code the encoder may emit before the decoder has inserted
		// it: the previous phrase extended by its own first symbol.
		entry = d.prev + firstSymbol(d.prev)
	default:
		return "", fmt.Errorf("%w (%d, table size %d)", ErrUnknownCode, code, d.next)
	}

	if d.prev != "" {
		d.entries[d.next] = d.prev + firstSymbol(entry)
		d.next++
	}
	d.prev = entry
	return entry, nil
}

// firstSymbol returns the first rune of s as a string. Entries are built
// rune-wise because feed symbols above 0x7F occupy multiple bytes in Go
// strings.
func firstSymbol(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	return string(r)
}

// codeWidth returns the number of bits needed to read the next code when the
// table holds next codes: the smallest w with 2^w >= next+1. The width grows
// only when an insert pushes next across a power of two, and never shrinks
// within one decode.
func codeWidth(next int) int {
	return bits.Len(uint(next))
}

// DecodeString decodes a payload in the feed's character carrier. Characters
// below 256 are literal codes; dictionary codes start at 256. It fails with
// an ErrCorrupt-class error on any code outside the table, including a first
// character that is not a literal.
func DecodeString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	d := newDict(func(code int) (string, bool) {
		if code < 256 {
			return string(rune(code)), true
		}
		return "", false
	}, 256)

	var out strings.Builder
	for _, r := range s {
		entry, err := d.step(int(r))
		if err != nil {
			return "", err
		}
		out.WriteString(entry)
	}
	return out.String(), nil
}

// DecodeCodes decodes an explicit code sequence over the given base alphabet
// (alphabet[i] is the symbol for code i). This is the table walk both
// carriers share, exposed for payloads whose framing already separated the
// codes.
func DecodeCodes(codes []int, alphabet string) (string, error) {
	syms := []rune(alphabet)
	if len(syms) < 2 {
		return "", fmt.Errorf("lzw: alphabet needs at least 2 symbols, got %d", len(syms))
	}

	d := newDict(func(code int) (string, bool) {
		if code < len(syms) {
			return string(syms[code]), true
		}
		return "", false
	}, len(syms))

	var out strings.Builder
	for _, code := range codes {
		entry, err := d.step(code)
		if err != nil {
			return "", err
		}
		out.WriteString(entry)
	}
	return out.String(), nil
}

// DecodeBits decodes a bit-packed payload over the given base alphabet.
// Codes are MSB-first with the width given by codeWidth at the moment of
// each read. Input must end on a code boundary; an all-zero tail narrower
// than a code is padding, anything else fails with ErrTruncated.
func DecodeBits(data []byte, alphabet string) (string, error) {
	syms := []rune(alphabet)
	if len(syms) < 2 {
		return "", fmt.Errorf("lzw: alphabet needs at least 2 symbols, got %d", len(syms))
	}

	d := newDict(func(code int) (string, bool) {
		if code < len(syms) {
			return string(syms[code]), true
		}
		return "", false
	}, len(syms))

	r := bitReader{data: data}
	var out strings.Builder
	for {
		width := codeWidth(d.next)
		rem := r.remaining()
		if rem == 0 {
			break
		}
		if rem < width {
			if r.restZero() {
				break
			}
			return "", fmt.Errorf("%w (%d leftover bits)", ErrTruncated, rem)
		}

		entry, err := d.step(r.read(width))
		if err != nil {
			return "", err
		}
		out.WriteString(entry)
	}
	return out.String(), nil
}

// bitReader yields MSB-first bit runs from a byte slice.
type bitReader struct {
	data []byte
	pos  int // in bits
}

func (r *bitReader) remaining() int {
	return len(r.data)*8 - r.pos
}

func (r *bitReader) read(width int) int {
	v := 0
	for i := 0; i < width; i++ {
		b := r.data[r.pos/8] >> (7 - r.pos%8) & 1
		v = v<<1 | int(b)
		r.pos++
	}
	return v
}

func (r *bitReader) restZero() bool {
	for p := r.pos; p < len(r.data)*8; p++ {
		if r.data[p/8]>>(7-p%8)&1 != 0 {
			return false
		}
	}
	return true
}
