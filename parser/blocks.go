// Package parser reads and writes HEC-RAS text model files: project
// (.prj), geometry (.gNN), plan (.pNN) and steady-flow (.fNN). Every
// parse_* operation has a write_* inverse, and re-emitting an unmodified
// in-memory structure is required to reproduce the source bytes exactly
// (spec.md §4.1, §8 round-trip property).
package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Dewberry/ripple1d"
)

// ParseError is returned when a sub-block's declared length does not match
// its actual content, or a required key is missing, per spec.md §4.1.
type ParseError struct {
	File string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parser: %s: %s", e.File, e.Msg)
}

func (e *ParseError) Unwrap() error { return ripple1d.ErrParse }

func parseErr(file, format string, args ...interface{}) error {
	return &ParseError{File: file, Msg: fmt.Sprintf(format, args...)}
}

// lines splits r into raw lines, keeping the line terminator convention
// used by the source (CRLF is normalized to "\n" on read and restored on
// write via newline).
func lines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		out = append(out, strings.TrimRight(sc.Text(), "\r"))
	}
	return out, sc.Err()
}

// newline is the line terminator this package writes. HEC-RAS text files
// are plain ASCII with CRLF line endings.
const newline = "\r\n"

// splitKV splits a "KEY=VALUE" line on the first '=' (the grammar in
// spec.md §6: project/plan/flow/geometry files are newline-delimited
// `KEY=VALUE` records).
func splitKV(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	return line[:i], line[i+1:], true
}

func findKV(ls []string, key string) (string, bool) {
	for _, l := range ls {
		k, v, ok := splitKV(l)
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}

func requireKV(file string, ls []string, key string) (string, error) {
	v, ok := findKV(ls, key)
	if !ok {
		return "", parseErr(file, "missing required key %q", key)
	}
	return v, nil
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// fixedFields splits line into fields of the given width; a final field
// shorter than width is kept as it is. HEC-RAS packs numeric series
// into fixed-width positional columns (spec.md §4.1): coordinate pairs at
// 16 chars, station/elevation pairs at 8 chars, Manning triplets at 8
// chars each.
func fixedFields(line string, width int) []string {
	var out []string
	for len(line) > 0 {
		if len(line) < width {
			out = append(out, line)
			break
		}
		out = append(out, line[:width])
		line = line[width:]
	}
	return out
}

func parseFixedFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// decodeCoordBlock decodes the N-line-implied payload following an
// `XS GIS Cut Line=N` header: ceil(N/2) lines of fixed 32-char pairs
// (16+16 for x, y).
func decodeCoordBlock(file string, body []string, n int) ([][2]float64, []string, error) {
	want := ceilDiv(n, 2)
	if len(body) < want {
		return nil, nil, parseErr(file, "XS GIS Cut Line declared %d points (%d lines) but only %d lines present", n, want, len(body))
	}
	// Coordinates are x,y pairs packed two-per-line in 16-char fields
	// (x1,y1,x2,y2 per line).
	var flat []float64
	for _, line := range body[:want] {
		for _, f := range fixedFields(line, 16) {
			v, err := parseFixedFloat(f)
			if err != nil {
				return nil, nil, parseErr(file, "decoding cut line coordinate %q: %v", f, err)
			}
			flat = append(flat, v)
		}
	}
	if len(flat) < 2*n {
		return nil, nil, parseErr(file, "XS GIS Cut Line declared %d points but only %d values decoded", n, len(flat)/2)
	}
	pts := make([][2]float64, n)
	for i := 0; i < n; i++ {
		pts[i] = [2]float64{flat[2*i], flat[2*i+1]}
	}
	return pts, body[want:], nil
}

// decodeStaElevBlock decodes the payload following `#Sta/Elev= N`:
// ceil(N/5) lines of fixed 16-char pairs (8+8 for station, elevation).
func decodeStaElevBlock(file string, body []string, n int) ([]ripple1d.StationElevation, []string, error) {
	want := ceilDiv(n, 5)
	if len(body) < want {
		return nil, nil, parseErr(file, "#Sta/Elev declared %d points (%d lines) but only %d lines present", n, want, len(body))
	}
	var flat []float64
	for _, line := range body[:want] {
		for _, f := range fixedFields(line, 8) {
			v, err := parseFixedFloat(f)
			if err != nil {
				return nil, nil, parseErr(file, "decoding station/elevation value %q: %v", f, err)
			}
			flat = append(flat, v)
		}
	}
	if len(flat) < 2*n {
		return nil, nil, parseErr(file, "#Sta/Elev declared %d points but only %d values decoded", n, len(flat)/2)
	}
	out := make([]ripple1d.StationElevation, n)
	for i := 0; i < n; i++ {
		out[i] = ripple1d.StationElevation{Station: flat[2*i], Elevation: flat[2*i+1]}
	}
	return out, body[want:], nil
}

// decodeManningBlock decodes the payload following `#Mann= N,code`:
// ceil(N/3) lines of fixed 24-char triplets (station, n-value, code).
func decodeManningBlock(file string, body []string, n int) ([]ripple1d.ManningSubdivision, []string, error) {
	want := ceilDiv(n, 3)
	if len(body) < want {
		return nil, nil, parseErr(file, "#Mann declared %d subdivisions (%d lines) but only %d lines present", n, want, len(body))
	}
	var flat []float64
	for _, line := range body[:want] {
		for _, f := range fixedFields(line, 8) {
			v, err := parseFixedFloat(f)
			if err != nil {
				return nil, nil, parseErr(file, "decoding Manning value %q: %v", f, err)
			}
			flat = append(flat, v)
		}
	}
	if len(flat) < 3*n {
		return nil, nil, parseErr(file, "#Mann declared %d subdivisions but only %d triplets decoded", n, len(flat)/3)
	}
	out := make([]ripple1d.ManningSubdivision, n)
	for i := 0; i < n; i++ {
		out[i] = ripple1d.ManningSubdivision{Station: flat[3*i], N: flat[3*i+1]}
	}
	return out, body[want:], nil
}

// parseManningHeader parses a `#Mann= N,code` header into the subdivision
// count and the code: -1 for a horizontally-varying n, 0 for a constant
// channel n.
func parseManningHeader(file, value string) (n int, code int, err error) {
	parts := strings.SplitN(value, ",", 2)
	n, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, parseErr(file, "parsing #Mann count %q: %v", parts[0], err)
	}
	if len(parts) == 2 {
		code, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, parseErr(file, "parsing #Mann code %q: %v", parts[1], err)
		}
		if code != -1 && code != 0 {
			return 0, 0, parseErr(file, "unsupported #Mann code %d (expected -1 or 0)", code)
		}
	}
	return n, code, nil
}

// headerSplit decodes a `Type RM Length L Ch R =t,rs,Ll,Lc,Lr` line, per
// spec.md §4.1. A trailing '*' on rs marks an interpolated cross-section;
// it is stripped before parsing and reported through the interpolated
// result.
func headerSplit(file, value string) (t int, rs float64, interpolated bool, ll, lc, lr float64, err error) {
	fields := strings.Split(value, ",")
	if len(fields) < 5 {
		return 0, 0, false, 0, 0, 0, parseErr(file, "Type RM Length L Ch R header has %d fields, want 5", len(fields))
	}
	t, err = strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, 0, false, 0, 0, 0, parseErr(file, "parsing node type %q: %v", fields[0], err)
	}
	rsRaw := strings.TrimSpace(fields[1])
	if strings.HasSuffix(rsRaw, "*") {
		interpolated = true
		rsRaw = strings.TrimSuffix(rsRaw, "*")
	}
	rs, err = strconv.ParseFloat(rsRaw, 64)
	if err != nil {
		return 0, 0, false, 0, 0, 0, parseErr(file, "parsing river station %q: %v", rsRaw, err)
	}
	if ll, err = parseFixedFloat(fields[2]); err != nil {
		return 0, 0, false, 0, 0, 0, parseErr(file, "parsing left reach length %q: %v", fields[2], err)
	}
	if lc, err = parseFixedFloat(fields[3]); err != nil {
		return 0, 0, false, 0, 0, 0, parseErr(file, "parsing channel reach length %q: %v", fields[3], err)
	}
	if lr, err = parseFixedFloat(fields[4]); err != nil {
		return 0, 0, false, 0, 0, 0, parseErr(file, "parsing right reach length %q: %v", fields[4], err)
	}
	return t, rs, interpolated, ll, lc, lr, nil
}

// rewriteHeaderLine rewrites the first line of a node's RasData block to
// reflect an updated river station, per spec.md §4.5 step 5 and the pure
// rewrite-only-the-header design note in spec.md §9.
func rewriteHeaderLine(original string, newRS float64, interpolated bool, ll, lc, lr float64) string {
	i := strings.IndexByte(original, '\n')
	first := original
	rest := ""
	if i >= 0 {
		first = original[:i]
		rest = original[i:]
	}
	first = strings.TrimRight(first, "\r")
	key, value, ok := splitKV(first)
	if !ok {
		return original
	}
	fields := strings.Split(value, ",")
	if len(fields) < 5 {
		return original
	}
	rsStr := trimFloat(newRS)
	if interpolated {
		rsStr += "*"
	}
	fields[1] = rsStr
	fields[2] = trimFloat(ll)
	fields[3] = trimFloat(lc)
	fields[4] = trimFloat(lr)
	return key + "=" + strings.Join(fields, ",") + rest
}

func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}
