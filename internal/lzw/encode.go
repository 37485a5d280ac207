package lzw

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// EncodeString compresses plain text into the feed's character carrier.
// Every input symbol must fit the literal space (below 256). The inverse of
// DecodeString; used by tests and the synthetic feed generator.
func EncodeString(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	for _, r := range s {
		if r > 0xFF {
			return "", fmt.Errorf("lzw: symbol %q outside the literal alphabet", r)
		}
	}

	phrases := make(map[string]rune)
	next := rune(256)

	codeOf := func(w string) rune {
		if c, ok := phrases[w]; ok {
			return c
		}
		r, _ := utf8.DecodeRuneInString(w)
		return r
	}

	var out strings.Builder
	runes := []rune(s)
	w := string(runes[0])
	for _, r := range runes[1:] {
		c := string(r)
		if _, ok := phrases[w+c]; ok {
			w += c
			continue
		}
		out.WriteRune(codeOf(w))
		phrases[w+c] = next
		next++
		w = c
	}
	out.WriteRune(codeOf(w))
	return out.String(), nil
}

// EncodeBits compresses plain text into the bit-packed carrier over the
// given base alphabet, mirroring DecodeBits' width schedule: the decoder's
// table lags the encoder's by one insert, so widths are derived from a
// simulated decoder-side next code rather than from the encoder dictionary.
//
// With alphabets of 128 symbols or more the final zero padding is always
// narrower than a code and round trips are unambiguous. Toy alphabets can
// end with padding wide enough to read as code zero; frame such payloads on
// a byte boundary.
func EncodeBits(plain, alphabet string) ([]byte, error) {
	syms := []rune(alphabet)
	if len(syms) < 2 {
		return nil, fmt.Errorf("lzw: alphabet needs at least 2 symbols, got %d", len(syms))
	}
	literals := make(map[rune]int, len(syms))
	for i, r := range syms {
		literals[r] = i
	}
	if plain == "" {
		return nil, nil
	}
	for _, r := range plain {
		if _, ok := literals[r]; !ok {
			return nil, fmt.Errorf("lzw: symbol %q outside the base alphabet", r)
		}
	}

	phrases := make(map[string]int)
	nextPhrase := len(syms)
	codeOf := func(w string) int {
		if c, ok := phrases[w]; ok {
			return c
		}
		r, _ := utf8.DecodeRuneInString(w)
		return literals[r]
	}

	var bw bitWriter
	decNext := len(syms)
	first := true
	emit := func(code int) {
		bw.write(code, codeWidth(decNext))
		if first {
			first = false
		} else {
			decNext++
		}
	}

	runes := []rune(plain)
	w := string(runes[0])
	for _, r := range runes[1:] {
		c := string(r)
		if _, ok := phrases[w+c]; ok {
			w += c
			continue
		}
		emit(codeOf(w))
		phrases[w+c] = nextPhrase
		nextPhrase++
		w = c
	}
	emit(codeOf(w))
	return bw.bytes(), nil
}

// bitWriter packs MSB-first codes, zero-padding the final byte.
type bitWriter struct {
	buf []byte
	n   int // bits used in the last byte
}

func (w *bitWriter) write(code, width int) {
	for i := width - 1; i >= 0; i-- {
		if w.n == 0 {
			w.buf = append(w.buf, 0)
		}
		bit := byte(code >> i & 1)
		w.buf[len(w.buf)-1] |= bit << (7 - w.n)
		w.n = (w.n + 1) % 8
	}
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}
