package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000"},
		{"1.5", "1500000000"},
		{"0.000000001", "1"},
		{"0", "0"},
		{".5", "500000000"},
		{"123456789.987654321", "123456789987654321"},
	}

	for _, tc := range cases {
		got, err := Tokens(tc.in)
		require.NoError(t, err, "Tokens(%q)", tc.in)
		assert.Equal(t, tc.want, got, "Tokens(%q)", tc.in)
	}
}

func TestTokensInvalid(t *testing.T) {
	for _, in := range []string{"", "-1", "1.0000000001", "abc", "1.2.3"} {
		_, err := Tokens(in)
		assert.Error(t, err, "Tokens(%q)", in)
	}
}

func TestFromNanoRoundTrip(t *testing.T) {
	for _, in := range []string{"1", "1.5", "0.000000001", "42", "123456789.987654321"} {
		nano, err := Tokens(in)
		require.NoError(t, err)

		back, err := FromNano(nano)
		require.NoError(t, err)
		assert.Equal(t, in, back, "round trip of %q", in)
	}
}
