package crawler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlocklist(t *testing.T) {
	t.Run("registered domain match", func(t *testing.T) {
		bl := NewBlocklist([]string{"example.org"})
		require.NotNil(t, bl)
		require.True(t, bl.IsBlocked("https://example.org/a.pdf"))
		require.True(t, bl.IsBlocked("https://www.example.org/reports"))
		require.False(t, bl.IsBlocked("https://example.com"))
	})

	t.Run("subdomain of plain entry", func(t *testing.T) {
		bl := NewBlocklist([]string{"calpers.ca.gov"})
		require.NotNil(t, bl)
		require.True(t, bl.IsBlocked("https://calpers.ca.gov/a.pdf"))
		require.True(t, bl.IsBlocked("https://www.calpers.ca.gov/a.pdf"))
		require.True(t, bl.IsBlocked("https://docs.www.calpers.ca.gov/a.pdf"))
		require.False(t, bl.IsBlocked("https://calstrs.ca.gov/a.pdf"))
		require.False(t, bl.IsBlocked("https://notcalpers.ca.gov/a.pdf"))
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		bl := NewBlocklist([]string{"*.ru"})
		require.NotNil(t, bl)
		cases := []struct {
			host    string
			blocked bool
		}{
			{"http://example.ru", true},
			{"sub.domain.ru", true},
			{"ru", true},
			{"example.com", false},
		}
		for _, tc := range cases {
			require.Equal(t, tc.blocked, bl.IsBlocked(tc.host), tc.host)
		}
	})

	t.Run("comments and blanks only", func(t *testing.T) {
		require.Nil(t, NewBlocklist([]string{"", "  ", "# nothing"}))
	})

	t.Run("nil blocklist", func(t *testing.T) {
		var bl *Blocklist
		require.False(t, bl.IsBlocked("anything"))
		require.Zero(t, bl.Len())
	})
}

func TestLoadBlocklist(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blacklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("# blocked\ncalpers.ca.gov\n.xyz\n"), 0o600))

	bl, err := LoadBlocklist(path)
	require.NoError(t, err)
	require.Equal(t, 2, bl.Len())
	require.True(t, bl.IsBlocked("https://www.calpers.ca.gov/docs/x.pdf"))
	require.True(t, bl.IsBlocked("https://files.xyz/x.pdf"))

	_, err = LoadBlocklist(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
