package caseio

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"rtviewer/internal/models"
)

// ReadPayload reads a voxel payload. The compressed file name+".gz" is
// preferred over name. Gzip and zlib streams are inflated; anything that
// does not inflate is returned as stored.
func ReadPayload(name string) ([]byte, error) {
	candidates := []string{name}
	if !strings.HasSuffix(name, ".gz") {
		candidates = []string{name + ".gz", name}
	}
	var data []byte
	var err error
	for _, path := range candidates {
		data, err = os.ReadFile(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return Inflate(data), nil
}

// Inflate decompresses gzip or zlib data and returns anything else unchanged.
func Inflate(data []byte) []byte {
	var r io.ReadCloser
	var err error
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		r, err = gzip.NewReader(bytes.NewReader(data))
	case len(data) >= 2 && data[0]&0x0f == 8 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0:
		r, err = zlib.NewReader(bytes.NewReader(data))
	default:
		return data
	}
	if err != nil {
		return data
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return out
}

// LoadReference reads ct.bin and maps every byte through the manifest LUT.
func (c *Case) LoadReference() (*models.ReferenceVolume, error) {
	ct := c.Manifest.CT
	grid, err := ct.Grid(ct.Count)
	if err != nil {
		return nil, fmt.Errorf("ct grid: %w", err)
	}
	raw, err := ReadPayload(filepath.Join(c.Dir, "ct.bin"))
	if err != nil {
		return nil, err
	}
	if len(raw) != grid.VoxelCount() {
		return nil, fmt.Errorf("%w: ct.bin has %d voxels, grid needs %d",
			models.ErrMalformedGeometry, len(raw), grid.VoxelCount())
	}

	var lut [256]int16
	for i, v := range ct.LUT {
		lut[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
	}
	data := make([]int16, len(raw))
	for i, b := range raw {
		data[i] = lut[b]
	}
	return models.NewReferenceVolume(grid, data)
}

// LoadDose reads the dose volume with the given ID.
func (c *Case) LoadDose(id string) (*models.DoseVolume, error) {
	meta, ok := c.Manifest.Doses[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dose %q", ErrManifest, id)
	}
	grid, err := meta.Grid(len(meta.ZPositions))
	if err != nil {
		return nil, fmt.Errorf("dose %q grid: %w", id, err)
	}
	raw, err := ReadPayload(filepath.Join(c.Dir, meta.Filename))
	if err != nil {
		return nil, err
	}
	values, err := DecodeFloat32(raw)
	if err != nil {
		return nil, fmt.Errorf("dose %q: %w", id, err)
	}
	return models.NewDoseVolume(grid, values)
}

// DecodeFloat32 decodes little-endian float32 values.
func DecodeFloat32(raw []byte) ([]float64, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32 values",
			models.ErrMalformedGeometry, len(raw))
	}
	out := make([]float64, len(raw)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return out, nil
}
