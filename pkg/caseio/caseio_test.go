package caseio

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"rtviewer/internal/models"
	"rtviewer/pkg/geometry"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func float32LE(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// writeCase lays out a 2x3x2 CT and a 1x2x2 dose.
func writeCase(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "case01")
	require.NoError(t, os.MkdirAll(dir, 0755))

	lut := make([]float64, 256)
	for i := range lut {
		lut[i] = float64(i*10 - 1000)
	}
	m := Manifest{
		CT: CTMeta{
			GridMeta: GridMeta{
				Rows: 2, Cols: 3,
				Spacing: []float64{1, 1}, Origin: []float64{-1.5, -1},
				ZPositions: []float64{0, 2.5},
			},
			Count: 2,
			LUT:   lut,
		},
		Doses: map[string]DoseMeta{
			"plan": {
				GridMeta: GridMeta{
					Rows: 1, Cols: 2,
					Spacing: []float64{2, 2}, Origin: []float64{-1, -1},
					ZPositions: []float64{0, 2.5},
				},
				Filename: "dose_plan.bin",
			},
		},
		Structs: map[string]string{"rs": "rs.json"},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "manifest.json"), data)

	writeFile(t, filepath.Join(dir, "ct.bin.gz"), gzipped(t, []byte{100, 101, 102, 103, 104, 105, 0, 1, 2, 3, 4, 255}))
	writeFile(t, filepath.Join(dir, "dose_plan.bin"), float32LE(1, 2, 30.5, 60))
	writeFile(t, filepath.Join(dir, "rs.json"), []byte(`{
		"PTV": {"color": "#f00", "contours": {"2.50": [[[0, 0], [1, 0], [1, 1]]]}},
		"Body": {"color": [0, 128, 255], "contours": {"0.00": [[[-1, -1, 0], [1, -1, 0], [1, 1, 0]]]}}
	}`))
	return dir
}

func TestOpenAndLoadReference(t *testing.T) {
	c, err := Open(writeCase(t))
	require.NoError(t, err)
	assert.Equal(t, "case01", c.ID)
	assert.Equal(t, []string{"plan"}, c.DoseIDs())
	assert.Equal(t, []string{"rs"}, c.StructureSetIDs())

	ref, err := c.LoadReference()
	require.NoError(t, err)
	assert.Equal(t, 3, ref.Grid.Cols)
	assert.Equal(t, 2, ref.Grid.Rows)
	assert.Equal(t, r2.Vec{X: -1.5, Y: -1}, ref.Grid.Origin)
	assert.Equal(t, []float64{0, 2.5}, ref.Grid.ZPositions)

	first, ok := ref.Slice(0)
	require.True(t, ok)
	assert.Equal(t, []int16{0, 10, 20, 30, 40, 50}, first)
	second, _ := ref.Slice(1)
	assert.Equal(t, int16(1550), second[5])
}

func TestLoadDoseReadsUncompressedFloat32(t *testing.T) {
	c, err := Open(writeCase(t))
	require.NoError(t, err)

	dose, err := c.LoadDose("plan")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 30.5, 60}, dose.Data)
	assert.Equal(t, 2, dose.Grid.Slices)

	_, err = c.LoadDose("other")
	assert.ErrorIs(t, err, ErrManifest)
}

func TestLoadDoseRejectsWrongLength(t *testing.T) {
	dir := writeCase(t)
	writeFile(t, filepath.Join(dir, "dose_plan.bin"), float32LE(1, 2, 3))
	c, err := Open(dir)
	require.NoError(t, err)

	_, err = c.LoadDose("plan")
	assert.ErrorIs(t, err, models.ErrMalformedGeometry)

	writeFile(t, filepath.Join(dir, "dose_plan.bin"), []byte{1, 2, 3})
	_, err = c.LoadDose("plan")
	assert.ErrorIs(t, err, models.ErrMalformedGeometry)
}

func TestLoadReferenceRejectsWrongLength(t *testing.T) {
	dir := writeCase(t)
	writeFile(t, filepath.Join(dir, "ct.bin.gz"), gzipped(t, []byte{1, 2, 3}))
	c, err := Open(dir)
	require.NoError(t, err)

	_, err = c.LoadReference()
	assert.ErrorIs(t, err, models.ErrMalformedGeometry)
}

func TestOpenRejectsBadManifest(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrManifest)

	writeFile(t, filepath.Join(dir, "manifest.json"), []byte(`{"ct": {"count": 2, "lut": [1, 2]}}`))
	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrManifest)

	writeFile(t, filepath.Join(dir, "manifest.json"), []byte(`{"ct": `))
	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrManifest)
}

func TestLoadStructures(t *testing.T) {
	c, err := Open(writeCase(t))
	require.NoError(t, err)

	set, err := c.LoadStructures("rs")
	require.NoError(t, err)
	assert.Equal(t, []string{"Body", "PTV"}, set.Names())

	ptv, ok := set.ROI("PTV")
	require.True(t, ok)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, ptv.Color)
	require.Len(t, ptv.Contours[2.5], 1)
	assert.Len(t, ptv.Contours[2.5][0], 3)

	body, _ := set.ROI("Body")
	assert.Equal(t, color.RGBA{G: 128, B: 255, A: 255}, body.Color)
	// pixel (1, -1) on the CT grid
	assert.Equal(t, r2.Vec{X: -0.5, Y: -2}, body.Contours[0][0][1])

	_, err = c.LoadStructures("missing")
	assert.ErrorIs(t, err, ErrManifest)
}

func TestParseStructuresMapsPixelsToWorld(t *testing.T) {
	ct := models.Grid{
		Rows: 512, Cols: 512, Slices: 1,
		Spacing:    r2.Vec{X: 0.5, Y: 0.5},
		Origin:     r2.Vec{X: -250, Y: -250},
		ZPositions: []float64{-12.5},
	}
	set, err := ParseStructures(strings.NewReader(
		`{"PTV": {"contours": {"-12.50": [[[1, 1], [300, 1], [300, 200.5]]]}}}`), ct)
	require.NoError(t, err)

	ptv, ok := set.ROI("PTV")
	require.True(t, ok)
	poly := ptv.Contours[-12.5][0]
	assert.Equal(t, r2.Vec{X: -249.5, Y: -249.5}, poly[0])
	assert.Equal(t, r2.Vec{X: -100, Y: -149.75}, poly[2])

	for i, want := range []r2.Vec{{X: 1, Y: 1}, {X: 300, Y: 1}, {X: 300, Y: 200.5}} {
		got := geometry.WorldToPixel(ct, poly[i])
		assert.InDelta(t, want.X, got.X, 1e-9)
		assert.InDelta(t, want.Y, got.Y, 1e-9)
	}
}

func TestParseStructuresRejectsBadGeometry(t *testing.T) {
	ct := models.Grid{
		Rows: 1, Cols: 1, Slices: 1,
		Spacing:    r2.Vec{X: 1, Y: 1},
		ZPositions: []float64{0},
	}
	_, err := ParseStructures(strings.NewReader(`{"PTV": {"contours": {"abc": []}}}`), ct)
	assert.ErrorIs(t, err, models.ErrMalformedGeometry)

	_, err = ParseStructures(strings.NewReader(`{"PTV": {"contours": {"1.0": [[[1]]]}}}`), ct)
	assert.ErrorIs(t, err, models.ErrMalformedGeometry)

	_, err = ParseStructures(strings.NewReader(`[`), ct)
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	cases := map[string]color.RGBA{
		`"#00ff80"`:          {G: 255, B: 128, A: 255},
		`"#0F8"`:             {G: 255, B: 136, A: 255},
		`"rgb(10, 20, 300)"`: {R: 10, G: 20, B: 255, A: 255},
		`[1, 2, 3]`:          {R: 1, G: 2, B: 3, A: 255},
		`null`:               {R: 255, G: 255, B: 255, A: 255},
	}
	for in, want := range cases {
		got, err := ParseColor(json.RawMessage(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{`"#12"`, `"#gggggg"`, `"blue"`, `"rgb(1,2)"`, `[1, 2]`, `{}`} {
		_, err := ParseColor(json.RawMessage(bad))
		assert.Error(t, err, bad)
	}
}

func TestInflate(t *testing.T) {
	payload := []byte("voxels voxels voxels")

	assert.Equal(t, payload, Inflate(gzipped(t, payload)))

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, payload, Inflate(buf.Bytes()))

	assert.Equal(t, payload, Inflate(payload), "raw data passes through")

	corrupt := []byte{0x1f, 0x8b, 0, 0}
	assert.Equal(t, corrupt, Inflate(corrupt))
}

func TestReadPayloadPrefersCompressed(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "data.bin")
	writeFile(t, name, []byte("raw"))
	writeFile(t, name+".gz", gzipped(t, []byte("packed")))

	got, err := ReadPayload(name)
	require.NoError(t, err)
	assert.Equal(t, []byte("packed"), got)

	_, err = ReadPayload(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)
}

func TestListCases(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cases.json"), []byte(`["a", "b"]`))
	ids, err := ListCases(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	_, err = ListCases(t.TempDir())
	assert.Error(t, err)
}
