package lzw

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteAlphabet is the full 256-symbol literal space the live feed encodes
// over. With this alphabet every code is at least 9 bits wide, so the
// zero-padding of the final byte can never be mistaken for a code.
func byteAlphabet() string {
	var b strings.Builder
	for r := rune(0); r < 256; r++ {
		b.WriteRune(r)
	}
	return b.String()
}

// --- code sequence fixtures (hand-traced) ---

func TestDecodeCodes_Fixtures(t *testing.T) {
	tests := []struct {
		name     string
		codes    []int
		alphabet string
		want     string
	}{
		// 0→A, 1→B (insert 3=AB), 2→C (4=BC), 3→AB (5=CA), 4→BC (6=ABB).
		{name: "dictionary reference one step back", codes: []int{0, 1, 2, 3, 4}, alphabet: "ABC", want: "ABCABBC"},
		// Same prefix, then code 3 twice: the AB entry is reused.
		{name: "entry reuse", codes: []int{0, 1, 2, 3, 3}, alphabet: "ABC", want: "ABCABAB"},
		// Code 4 arrives before the decoder inserted it: prev + prev[0].
		{name: "not yet inserted code", codes: []int{0, 1, 2, 4}, alphabet: "AB", want: "ABABABA"},
		// The same special case immediately after the first output.
		{name: "not yet inserted at first boundary", codes: []int{0, 3, 3}, alphabet: "ABC", want: "AAAAA"},
		{name: "single code", codes: []int{2}, alphabet: "ABC", want: "C"},
		{name: "empty", codes: nil, alphabet: "ABC", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCodes(tt.codes, tt.alphabet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCodes_UnknownCode(t *testing.T) {
	tests := []struct {
		name     string
		codes    []int
		alphabet string
	}{
		// After one output the table holds codes 0..2 and the only permitted
		// dynamic code is 3; 4 has provably never been assigned.
		{name: "beyond next", codes: []int{0, 4}, alphabet: "ABC"},
		// The not-yet-inserted case needs a previous phrase.
		{name: "dynamic code first", codes: []int{3}, alphabet: "ABC"},
		{name: "negative", codes: []int{-1}, alphabet: "ABC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCodes(tt.codes, tt.alphabet)
			require.ErrorIs(t, err, ErrUnknownCode)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

// Growth timing: the first output inserts nothing, every later one inserts
// exactly one entry. [0,3,3] succeeding while [0,4] fails pins the boundary.
func TestDecodeCodes_TableGrowthBoundary(t *testing.T) {
	out, err := DecodeCodes([]int{0, 3, 3}, "ABC")
	require.NoError(t, err)
	assert.Equal(t, "AAAAA", out)

	_, err = DecodeCodes([]int{0, 4}, "ABC")
	require.ErrorIs(t, err, ErrUnknownCode)
}

func TestDecodeCodes_TinyAlphabetRejected(t *testing.T) {
	_, err := DecodeCodes([]int{0}, "A")
	require.Error(t, err)
}

// --- bit-packed carrier ---

// Codes [0,1,2,3,3,2] over {A,B,C} pack into exactly two bytes:
//
//	widths 2,2,3,3,3,3 → 00 01 010 011 011 010 → 0x14 0xDA
func TestDecodeBits_HandPackedFixture(t *testing.T) {
	out, err := DecodeBits([]byte{0x14, 0xDA}, "ABC")
	require.NoError(t, err)
	assert.Equal(t, "ABCABABC", out)
}

// A single zero bit left over is padding, not a truncated code.
func TestDecodeBits_ZeroPaddingIsCleanEnd(t *testing.T) {
	// 0x14 = 00 01 010 0 → A, B, C, one zero pad bit.
	out, err := DecodeBits([]byte{0x14}, "ABC")
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)
}

func TestDecodeBits_TruncatedMidCode(t *testing.T) {
	// 0x15 = 00 01 010 1 → A, B, C, then a set bit that cannot form a code.
	_, err := DecodeBits([]byte{0x15}, "ABC")
	require.ErrorIs(t, err, ErrTruncated)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeBits_ForgedCode(t *testing.T) {
	// 0xC0 = 11... → first code is 3, which no encoder can emit first.
	_, err := DecodeBits([]byte{0xC0}, "ABC")
	require.ErrorIs(t, err, ErrUnknownCode)
}

func TestDecodeBits_Empty(t *testing.T) {
	out, err := DecodeBits(nil, "ABC")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEncodeBits_RoundTrip(t *testing.T) {
	alphabet := byteAlphabet()
	tests := []string{
		"",
		"T",
		"TOBEORNOTTOBEORTOBEORNOT",
		`{"time":1713200000000000000,"lat":48.1549,"lon":11.5418}`,
		strings.Repeat("a", 100),
		strings.Repeat("lightning ", 40),
	}

	for _, plain := range tests {
		packed, err := EncodeBits(plain, alphabet)
		require.NoError(t, err)

		out, err := DecodeBits(packed, alphabet)
		require.NoError(t, err)
		assert.Equal(t, plain, out, "round trip of %q", plain)
	}
}

func TestEncodeBits_SymbolOutsideAlphabet(t *testing.T) {
	_, err := EncodeBits("ABX", "AB")
	require.Error(t, err)
}

// --- character carrier (the live feed form) ---

func TestEncodeDecodeString_RoundTrip(t *testing.T) {
	tests := []string{
		"",
		"x",
		"AAAAA",
		"TOBEORNOTTOBEORTOBEORNOT",
		`[{"time":1713200000123456789,"lat":48.1549,"lon":11.5418,"alt":0,"pol":0,"mds":12500,"sig":14,"region":1}]`,
		strings.Repeat(`{"lat":-33.86,"lon":151.20}`, 10),
		"latin-1 bytes: éüßÿ",
	}

	for _, plain := range tests {
		enc, err := EncodeString(plain)
		require.NoError(t, err)

		out, err := DecodeString(enc)
		require.NoError(t, err)
		assert.Equal(t, plain, out, "round trip of %q", plain)
	}
}

// Compression must actually shorten repetitive payloads, otherwise the
// dictionary bookkeeping is broken even if round trips pass.
func TestEncodeString_Compresses(t *testing.T) {
	plain := strings.Repeat(`{"lat":48.15,"lon":11.54}`, 20)
	enc, err := EncodeString(plain)
	require.NoError(t, err)
	assert.Less(t, len([]rune(enc)), len([]rune(plain)))
}

func TestDecodeString_UnknownCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "dictionary code first", in: string(rune(300))},
		{name: "code beyond next", in: "A" + string(rune(300))},
		{name: "skipped dictionary slot", in: "AB" + string(rune(258))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeString(tt.in)
			require.ErrorIs(t, err, ErrUnknownCode)
		})
	}
}

// Code 256 directly after the first literal is the not-yet-inserted case.
func TestDecodeString_ImmediateDictionaryCode(t *testing.T) {
	out, err := DecodeString("A" + string(rune(256)))
	require.NoError(t, err)
	assert.Equal(t, "AAA", out)
}

func TestEncodeString_RejectsWideRunes(t *testing.T) {
	_, err := EncodeString("okሴ")
	require.Error(t, err)
}
