package forms

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestParseField(t *testing.T) {
	fields := map[string]string{"n": "42", "d": "2024-01-02", "bad": "x1", "max": "9007199254740992"}

	v, err := ParseField(TypeUInt, fields, "n")
	require.NoError(t, err)
	require.Equal(t, UIntValue(42), v)

	v, err = ParseField(TypeUInt, fields, "max")
	require.NoError(t, err)
	require.Equal(t, UIntValue(MaxUInt), v)

	v, err = ParseField(TypeDate, fields, "d")
	require.NoError(t, err)
	require.Equal(t, TypeDate, v.Type)
	require.True(t, v.Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))

	v, err = ParseField(TypeEmpty, nil, "anything")
	require.NoError(t, err)
	require.Equal(t, EmptyValue(), v)
}

func TestParseFieldErrors(t *testing.T) {
	fields := map[string]string{
		"neg": "-3", "word": "ten", "date": "2024-13-40", "slash": "2024/01/02",
		"huge": "9007199254740993",
	}
	cases := []struct {
		ft   FormType
		key  string
		want string
	}{
		{TypeUInt, "missing", "missing field"},
		{TypeUInt, "neg", "invalid integer"},
		{TypeUInt, "word", "invalid integer"},
		{TypeUInt, "huge", "exceeds"},
		{TypeDate, "missing", "missing field"},
		{TypeDate, "date", "invalid date"},
		{TypeDate, "slash", "invalid date"},
		{FormType("Color"), "word", "unknown form type"},
	}
	for _, tc := range cases {
		_, err := ParseField(tc.ft, fields, tc.key)
		require.ErrorIs(t, err, ErrParse, "%s %s", tc.ft, tc.key)
		require.Contains(t, err.Error(), tc.want)
	}
}

func TestValueJSON(t *testing.T) {
	for _, tc := range []struct {
		v    Value
		want string
	}{
		{UIntValue(5), `{"UInt":5}`},
		{DateValue(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), `{"Date":"2024-01-02"}`},
		{EmptyValue(), `"Empty"`},
	} {
		raw, err := json.Marshal(tc.v)
		require.NoError(t, err)
		require.JSONEq(t, tc.want, string(raw))
	}
}
