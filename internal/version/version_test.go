package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func withBuildVars(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
	Version, Commit, Date = version, commit, date
}

func TestStringUsesLinkerValues(t *testing.T) {
	withBuildVars(t, "0.4.0", "a1b2c3d", "2026-10-01")

	got := String()
	require.True(t, strings.HasPrefix(got, "glimpse 0.4.0 ("), got)
	require.Contains(t, got, "commit=a1b2c3d")
	require.Contains(t, got, "date=2026-10-01")
	require.Contains(t, got, "go=go")
}

func TestStringFallsBackToVCSRevision(t *testing.T) {
	withBuildVars(t, "dev", "none", "unknown")

	got := String()
	rev := vcsRevision()
	if rev == "" {
		require.Contains(t, got, "commit=none")
		return
	}
	require.LessOrEqual(t, len(rev), 12)
	require.Contains(t, got, "commit="+rev)
}
