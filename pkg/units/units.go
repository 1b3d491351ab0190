// Package units converts dose display thresholds between absolute dose and
// percent of prescription.
package units

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPrescription reports a missing, zero, negative or non-finite
// prescription dose.
var ErrInvalidPrescription = errors.New("invalid prescription dose")

// Unit is a dose display unit.
type Unit int

const (
	Absolute Unit = iota
	Percent
)

func (u Unit) String() string {
	switch u {
	case Absolute:
		return "Gy"
	case Percent:
		return "%"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// ParseUnit accepts "Gy", "absolute", "%" and "percent".
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "Gy", "gy", "absolute":
		return Absolute, nil
	case "%", "percent":
		return Percent, nil
	default:
		return Absolute, fmt.Errorf("unknown dose unit %q", s)
	}
}

// ToPercent expresses dose as a percentage of prescription.
func ToPercent(dose, prescription float64) float64 {
	return dose / prescription * 100
}

// ToAbsolute converts a percentage of prescription back to dose.
func ToAbsolute(percent, prescription float64) float64 {
	return percent / 100 * prescription
}

// ValidPrescription reports whether p can be divided by.
func ValidPrescription(p float64) bool {
	return p > 0 && !math.IsInf(p, 1)
}

// Range is a display window plus the slider's upper limit, all in one unit.
type Range struct {
	Min   float64
	Max   float64
	Limit float64
}

// Converter tracks the current unit and the last valid prescription.
type Converter struct {
	unit         Unit
	prescription float64
	maxPercent   float64
}

// NewConverter starts in absolute units. maxPercent is the slider limit as a
// percentage of prescription, e.g. 130.
func NewConverter(prescription, maxPercent float64) (*Converter, error) {
	if !ValidPrescription(prescription) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidPrescription, prescription)
	}
	if !(maxPercent > 0) {
		maxPercent = 130
	}
	return &Converter{unit: Absolute, prescription: prescription, maxPercent: maxPercent}, nil
}

// Unit returns the current display unit.
func (c *Converter) Unit() Unit {
	return c.unit
}

// Prescription returns the last valid prescription dose.
func (c *Converter) Prescription() float64 {
	return c.prescription
}

// Limit returns the slider limit in the current unit.
func (c *Converter) Limit() float64 {
	return c.limit(c.unit, c.prescription)
}

// ToAbsolute converts v, expressed in the current unit, to dose.
func (c *Converter) ToAbsolute(v float64) float64 {
	if c.unit == Percent {
		return ToAbsolute(v, c.prescription)
	}
	return v
}

// Switch changes unit and prescription and rescales r, given in the current
// unit, so that the same dose range stays selected. An invalid prescription
// falls back to the last valid one and the change is still applied. Only a
// switch to Percent needs a prescription, so only then does the returned
// error wrap ErrInvalidPrescription for callers to notify the user.
func (c *Converter) Switch(unit Unit, prescription float64, r Range) (Range, error) {
	var err error
	if !ValidPrescription(prescription) {
		if unit == Percent {
			err = fmt.Errorf("%w: %g, keeping %g", ErrInvalidPrescription, prescription, c.prescription)
		}
		prescription = c.prescription
	}

	lo, hi := c.ToAbsolute(r.Min), c.ToAbsolute(r.Max)
	out := Range{Min: lo, Max: hi, Limit: c.limit(unit, prescription)}
	if unit == Percent {
		out.Min = ToPercent(lo, prescription)
		out.Max = ToPercent(hi, prescription)
	}

	c.unit = unit
	c.prescription = prescription
	return out, err
}

func (c *Converter) limit(u Unit, prescription float64) float64 {
	if u == Percent {
		return c.maxPercent
	}
	return ToAbsolute(c.maxPercent, prescription)
}
