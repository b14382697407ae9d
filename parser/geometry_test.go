package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const geometryFixture = "Geom Title=Test River\r\n" +
	"Program Version=6.30\r\n" +
	"River Reach=Lower River,Lower Reach\r\n" +
	"Type RM Length L Ch R =1,1000,500,500,500\r\n" +
	"XS GIS Cut Line=2\r\n" +
	"             -50              10              50              10\r\n" +
	"#Sta/Elev= 3\r\n" +
	"       0      10      50       0     100      10\r\n" +
	"Bank Sta=20,80\r\n" +
	"\r\n" +
	"Type RM Length L Ch R =1,0,0,0,0\r\n" +
	"XS GIS Cut Line=2\r\n" +
	"             -50               0              50               0\r\n" +
	"#Sta/Elev= 3\r\n" +
	"       0      10      50       0     100      10\r\n" +
	"Bank Sta=20,80\r\n" +
	"\r\n" +
	"River Reach=Upper River,Upper Reach\r\n" +
	"Type RM Length L Ch R =1,0,0,0,0\r\n" +
	"XS GIS Cut Line=2\r\n" +
	"             -50               0              50               0\r\n" +
	"#Sta/Elev= 3\r\n" +
	"       0      10      50       0     100      10\r\n" +
	"Bank Sta=20,80\r\n" +
	"\r\n" +
	"Junct Name=Confluence\r\n" +
	"Up River,Reach=Upper River,Upper Reach\r\n" +
	"Dn River,Reach=Lower River,Lower Reach\r\n" +
	"Junc L&A=10,0\r\n"

// TestGeometryRoundTrip parses a fixture whose river/reach blocks are out
// of alphabetical order (Lower before Upper) and asserts that writing the
// unmodified result back reproduces the source bytes exactly, per
// spec.md §4.1/§8's round-trip property.
func TestGeometryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.g01")
	require.NoError(t, os.WriteFile(path, []byte(geometryFixture), 0o644))

	g, err := ParseGeometry(path, "")
	require.NoError(t, err)
	require.Len(t, g.ReachOrder, 2)
	require.Equal(t, "Lower River", g.ReachOrder[0].River)
	require.Equal(t, "Upper River", g.ReachOrder[1].River)

	outPath := filepath.Join(dir, "out.g01")
	require.NoError(t, WriteGeometry(outPath, g))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, geometryFixture, string(got))
}
