package links

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Broker.Example/Research.pdf", "https://broker.example/Research.pdf"},
		{"strips default https port", "https://x.example:443/report.pdf", "https://x.example/report.pdf"},
		{"strips default http port", "http://x.example:80/a", "http://x.example/a"},
		{"drops fragment", "https://x.example/a#section", "https://x.example/a"},
		{"sorts query params", "https://x.example/r?z=1&a=2", "https://x.example/r?a=2&z=1"},
		{"keeps token values intact", "https://b.example/research.aspx?E=AbC123", "https://b.example/research.aspx?E=AbC123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURLRejectsRelative(t *testing.T) {
	t.Parallel()

	_, err := NormalizeURL("/relative/path.pdf")
	require.Error(t, err)
}

func TestHost(t *testing.T) {
	t.Parallel()

	require.Equal(t, "broker.example", Host("https://Broker.Example:8443/x"))
	require.Equal(t, "unknown", Host("://bad"))
}
