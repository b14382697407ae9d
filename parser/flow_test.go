package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Dewberry/ripple1d"
	"github.com/stretchr/testify/require"
)

// flowFixture carries pre-formatted numeric fields ("1000.00", not
// "1000") the way a real .fNN file does; WriteFlow must reproduce this
// verbatim rather than reformatting through float64 and losing the
// trailing zeros.
const flowFixture = "Flow Title=Test Flow\r\n" +
	"Number of Profiles= 2\r\n" +
	"Profile Names=PF1,PF2\r\n" +
	"River Rch & RM=Test River,Test Reach,1000.00\r\n" +
	" 1000.00 2000.00\r\n" +
	"Boundary for River Rch & Prof#=Test River,Test Reach,1\r\n" +
	"Up Type=0\r\n" +
	"Dn Type=1\r\n" +
	"Dn Slope=.001\r\n" +
	"Boundary for River Rch & Prof#=Test River,Test Reach,2\r\n" +
	"Up Type=0\r\n" +
	"Dn Type=1\r\n" +
	"Dn Slope=.001\r\n"

func TestFlowRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.f01")
	require.NoError(t, os.WriteFile(path, []byte(flowFixture), 0o644))

	ff, err := ParseFlow(path)
	require.NoError(t, err)
	require.Equal(t, 2, ff.NumProfiles)
	require.Len(t, ff.ReachFlows, 1)
	require.Equal(t, []float64{1000, 2000}, ff.ReachFlows[0].Flows)
	require.Len(t, ff.Boundaries, 2)

	outPath := filepath.Join(dir, "out.f01")
	require.NoError(t, WriteFlow(outPath, ff))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, flowFixture, string(got))
}

// TestFlowSynthesizedReconstruction exercises the no-RasData fallback
// path used by runner.NormalDepthInitial and friends, which build a
// FlowFile from scratch rather than round-tripping a parsed one.
func TestFlowSynthesizedReconstruction(t *testing.T) {
	ff := &ripple1d.FlowFile{
		Title:        "normal depth initial",
		NumProfiles:  1,
		ProfileNames: []string{"f_100"},
		ReachFlows: []ripple1d.ReachFlow{
			{River: "Test River", Reach: "Test Reach", RiverStation: 1000, Flows: []float64{100}},
		},
		Boundaries: []ripple1d.Boundary{
			{River: "Test River", Reach: "Test Reach", ProfileNum: 1, DnType: ripple1d.BoundaryNormalDepth, DnSlope: 0.001},
		},
	}

	dir := t.TempDir()
	outPath := filepath.Join(dir, "synth.f01")
	require.NoError(t, WriteFlow(outPath, ff))

	reread, err := ParseFlow(outPath)
	require.NoError(t, err)
	require.Equal(t, ff.NumProfiles, reread.NumProfiles)
	require.Equal(t, ff.ReachFlows[0].Flows, reread.ReachFlows[0].Flows)
	require.Len(t, reread.Boundaries, 1)
	require.Equal(t, ripple1d.BoundaryNormalDepth, reread.Boundaries[0].DnType)
}
