package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Dewberry/ripple1d"
	"github.com/stretchr/testify/require"
)

// projectFixture mirrors a real HEC-RAS project's line order: Current
// Plan= comes second, right after the title, not last (ras.py's
// RasProject special-cases splitlines()[1] for exactly this reason).
const projectFixture = "Proj Title=Test Project\r\n" +
	"Current Plan=p01\r\n" +
	"Plan File=p01\r\n" +
	"Geom File=g01\r\n" +
	"Flow File=f01\r\n"

func TestProjectRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.prj")
	require.NoError(t, os.WriteFile(path, []byte(projectFixture), 0o644))

	m, err := ParseProject(path)
	require.NoError(t, err)
	require.Equal(t, "Test Project", m.Title)
	require.Equal(t, ripple1d.FileRef("p01"), m.CurrentPlan)

	outPath := filepath.Join(dir, "out.prj")
	require.NoError(t, WriteProject(outPath, m))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, projectFixture, string(got))
}

// TestProjectRepointCurrentPlan confirms WriteProject patches only the
// Current Plan= line in place, preserving its original position and every
// other line verbatim.
func TestProjectRepointCurrentPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.prj")
	require.NoError(t, os.WriteFile(path, []byte(projectFixture), 0o644))

	m, err := ParseProject(path)
	require.NoError(t, err)
	m.CurrentPlan = "p02"

	outPath := filepath.Join(dir, "out.prj")
	require.NoError(t, WriteProject(outPath, m))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	want := "Proj Title=Test Project\r\n" +
		"Current Plan=p02\r\n" +
		"Plan File=p01\r\n" +
		"Geom File=g01\r\n" +
		"Flow File=f01\r\n"
	require.Equal(t, want, string(got))
}
