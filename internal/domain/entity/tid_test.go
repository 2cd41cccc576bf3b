package entity

import (
	"sort"
	"testing"
	"time"

	domainerrors "lens/internal/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTID_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		micros  int64
		clockID uint16
	}{
		{name: "epoch", micros: 0, clockID: 0},
		{name: "typical timestamp", micros: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC).UnixMicro(), clockID: 31},
		{name: "max clock id", micros: 1_700_000_000_000_000, clockID: 1023},
		{name: "max timestamp", micros: microsMask, clockID: 512},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tid := NewTID(tc.micros, tc.clockID)

			parsed, err := ParseTID(tid.String())
			require.NoError(t, err)

			assert.Equal(t, tid, parsed)
			assert.Equal(t, tc.micros, parsed.UnixMicros())
			assert.Equal(t, tc.clockID, parsed.ClockID())
		})
	}
}

func TestTID_StringIsAlwaysThirteenChars(t *testing.T) {
	assert.Len(t, NewTID(0, 0).String(), 13)
	assert.Len(t, NewTID(microsMask, 1023).String(), 13)
	assert.Len(t, GenerateTID().String(), 13)
}

func TestTID_LexicographicOrderMatchesTime(t *testing.T) {
	base := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

	encoded := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		tid := GenerateTIDAt(base.Add(time.Duration(i)*time.Millisecond), uint16(i%1024))
		encoded = append(encoded, tid.String())
	}

	assert.True(t, sort.StringsAreSorted(encoded),
		"string order must match chronological order")
}

func TestTID_ClockIDBreaksTiesWithinSameMicrosecond(t *testing.T) {
	at := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

	low := GenerateTIDAt(at, 1)
	high := GenerateTIDAt(at, 2)

	assert.Equal(t, low.UnixMicros(), high.UnixMicros())
	assert.Less(t, low.String(), high.String())
}

func TestParseTID_RejectsGarbage(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "too short", input: "3jzfcijpj2z2"},
		{name: "too long", input: "3jzfcijpj2z2aa"},
		{name: "digit outside alphabet", input: "3jzfcijpj2z20"},
		{name: "uppercase", input: "3JZFCIJPJ2Z2A"},
		{name: "punctuation", input: "3jzfcijpj-z2a"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTID(tc.input)

			require.Error(t, err)
			assert.ErrorIs(t, err, domainerrors.ErrInvalidFormat)
		})
	}
}

func TestTID_TimeRecoversMicrosecondPrecision(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 123_456_000, time.UTC)

	tid := GenerateTIDAt(at, 0)

	assert.True(t, tid.Time().Equal(at))
}
