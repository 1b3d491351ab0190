package main

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtviewer/pkg/caseio"
	"rtviewer/pkg/config"
	"rtviewer/pkg/session"
)

// writeCase lays out a 2x3x2 CT, one readable dose and one whose payload is
// missing.
func writeCase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	lut := make([]float64, 256)
	for i := range lut {
		lut[i] = float64(i)
	}
	doseGrid := caseio.GridMeta{
		Rows: 1, Cols: 2,
		Spacing: []float64{2, 2}, Origin: []float64{-1, -1},
		ZPositions: []float64{0, 2.5},
	}
	m := caseio.Manifest{
		CT: caseio.CTMeta{
			GridMeta: caseio.GridMeta{
				Rows: 2, Cols: 3,
				Spacing: []float64{1, 1}, Origin: []float64{-1.5, -1},
				ZPositions: []float64{0, 2.5},
			},
			Count: 2,
			LUT:   lut,
		},
		Doses: map[string]caseio.DoseMeta{
			"plan":   {GridMeta: doseGrid, Filename: "dose_plan.bin"},
			"broken": {GridMeta: doseGrid, Filename: "dose_broken.bin"},
		},
		Structs: map[string]string{"rs": "rs.json"},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ct.bin"), make([]byte, 12), 0644))

	dose := make([]byte, 16)
	for i, v := range []float32{1, 2, 30, 60} {
		binary.LittleEndian.PutUint32(dose[i*4:], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dose_plan.bin"), dose, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rs.json"),
		[]byte(`{"PTV": {"color": "#f00", "contours": {"0.00": [[[0, 0], [2, 0], [2, 1]]]}}}`), 0644))
	return dir
}

func TestLoadLayersCollectsEveryLoad(t *testing.T) {
	c, err := caseio.Open(writeCase(t))
	require.NoError(t, err)
	ref, err := c.LoadReference()
	require.NoError(t, err)

	sess, err := session.New(config.DefaultConfig(), ref, []session.PaneID{leftPane, rightPane},
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	doses := map[session.PaneID]string{leftPane: "plan", rightPane: "broken"}
	err = loadLayers(sess, c, doses, "rs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"broken"`)

	left, err := sess.Viewport(leftPane)
	require.NoError(t, err)
	assert.Equal(t, "plan", left.DoseID)
	assert.Equal(t, "rs", left.StructureSetID)

	right, err := sess.Viewport(rightPane)
	require.NoError(t, err)
	assert.Empty(t, right.DoseID)
	assert.Equal(t, "rs", right.StructureSetID)
}

func TestLoadLayersWithNothingSelected(t *testing.T) {
	c, err := caseio.Open(writeCase(t))
	require.NoError(t, err)
	ref, err := c.LoadReference()
	require.NoError(t, err)

	sess, err := session.New(config.DefaultConfig(), ref, []session.PaneID{leftPane, rightPane},
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	require.NoError(t, loadLayers(sess, c, map[session.PaneID]string{}, ""))
	left, err := sess.Viewport(leftPane)
	require.NoError(t, err)
	assert.Empty(t, left.DoseID)
}
