// Package caseio reads case directories exported for the viewer: a
// manifest describing the reference and dose grids, compressed voxel
// payloads and structure set JSON files.
//
// A data root holds cases.json, a list of case IDs, and one directory per
// case:
//
//	<case>/manifest.json
//	<case>/ct.bin.gz          one byte per voxel, mapped through ct.lut
//	<case>/<dose file>.gz     little-endian float32 dose in Gy
//	<case>/<structure file>   structure set JSON, points in CT pixels
package caseio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"rtviewer/internal/models"
)

// ErrManifest reports a manifest that is missing or inconsistent.
var ErrManifest = errors.New("invalid manifest")

// Manifest describes the volumes of one case.
type Manifest struct {
	CT      CTMeta              `json:"ct"`
	Doses   map[string]DoseMeta `json:"doses"`
	Structs map[string]string   `json:"structs"`
}

// GridMeta is the grid description shared by CT and dose entries.
type GridMeta struct {
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Spacing    []float64 `json:"spacing"`
	Origin     []float64 `json:"origin"`
	ZPositions []float64 `json:"z_positions"`

	// Chunks is written by the exporter; payloads are always read whole
	Chunks int `json:"chunks,omitempty"`
}

// CTMeta describes the reference volume.
type CTMeta struct {
	GridMeta
	Count int `json:"count"`

	// LUT maps each stored byte to an intensity
	LUT []float64 `json:"lut"`
}

// DoseMeta describes one dose volume.
type DoseMeta struct {
	GridMeta
	Filename string `json:"filename"`
}

// Grid converts the description to a models.Grid with the given slice count.
func (m GridMeta) Grid(slices int) (models.Grid, error) {
	if len(m.Spacing) < 2 {
		return models.Grid{}, fmt.Errorf("%w: spacing needs 2 values, got %d", ErrManifest, len(m.Spacing))
	}
	if len(m.Origin) < 2 {
		return models.Grid{}, fmt.Errorf("%w: origin needs 2 values, got %d", ErrManifest, len(m.Origin))
	}
	g := models.Grid{
		Rows:       m.Rows,
		Cols:       m.Cols,
		Slices:     slices,
		Spacing:    r2.Vec{X: m.Spacing[0], Y: m.Spacing[1]},
		Origin:     r2.Vec{X: m.Origin[0], Y: m.Origin[1]},
		ZPositions: m.ZPositions,
	}
	if err := g.Validate(); err != nil {
		return models.Grid{}, err
	}
	return g, nil
}

// Case is an opened case directory.
type Case struct {
	ID       string
	Dir      string
	Manifest Manifest
}

// ListCases reads the case IDs listed in root/cases.json.
func ListCases(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, "cases.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read case list: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse case list: %w", err)
	}
	return ids, nil
}

// Open reads dir/manifest.json.
func Open(dir string) (*Case, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if m.CT.Count <= 0 {
		return nil, fmt.Errorf("%w: ct.count is %d", ErrManifest, m.CT.Count)
	}
	if len(m.CT.LUT) != 256 {
		return nil, fmt.Errorf("%w: ct.lut has %d entries, want 256", ErrManifest, len(m.CT.LUT))
	}
	return &Case{ID: filepath.Base(dir), Dir: dir, Manifest: m}, nil
}

// DoseIDs returns the dose IDs in sorted order.
func (c *Case) DoseIDs() []string {
	return sortedKeys(c.Manifest.Doses)
}

// StructureSetIDs returns the structure set IDs in sorted order.
func (c *Case) StructureSetIDs() []string {
	return sortedKeys(c.Manifest.Structs)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
