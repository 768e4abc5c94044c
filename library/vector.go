package library

import (
	"fmt"
	"math"
)

// Tolerance is the allowed deviation of a WeightVector sum from 1.0.
const Tolerance = 0.0001

// Dimension names in canonical order. They double as the JSON keys of the
// mac_vector object and prefix the matching rationale keys.
const (
	DimFamily      = "family"
	DimGroup       = "group"
	DimReciprocity = "reciprocity"
	DimHeroism     = "heroism"
	DimDeference   = "deference"
	DimFairness    = "fairness"
	DimProperty    = "property"
)

// DimensionNames lists the seven MAC dimensions in canonical order.
var DimensionNames = []string{
	DimFamily, DimGroup, DimReciprocity, DimHeroism,
	DimDeference, DimFairness, DimProperty,
}

// WeightVector is the 7-dimensional MAC composition of a standard.
// A saved vector must sum to 1.0 within Tolerance.
type WeightVector struct {
	Family      float64 `json:"family"`
	Group       float64 `json:"group"`
	Reciprocity float64 `json:"reciprocity"`
	Heroism     float64 `json:"heroism"`
	Deference   float64 `json:"deference"`
	Fairness    float64 `json:"fairness"`
	Property    float64 `json:"property"`
}

// Dimension is a named component of a WeightVector.
type Dimension struct {
	Name  string
	Value float64
}

// Sum returns the sum of all dimensions.
func (v WeightVector) Sum() float64 {
	return v.Family + v.Group + v.Reciprocity + v.Heroism +
		v.Deference + v.Fairness + v.Property
}

// IsValid reports whether the vector sums to 1.0 within Tolerance.
func (v WeightVector) IsValid() bool {
	return math.Abs(v.Sum()-1.0) < Tolerance
}

// IsZero reports whether every dimension is zero.
func (v WeightVector) IsZero() bool {
	return v == WeightVector{}
}

// Dimensions returns the components in canonical order.
func (v WeightVector) Dimensions() []Dimension {
	return []Dimension{
		{DimFamily, v.Family},
		{DimGroup, v.Group},
		{DimReciprocity, v.Reciprocity},
		{DimHeroism, v.Heroism},
		{DimDeference, v.Deference},
		{DimFairness, v.Fairness},
		{DimProperty, v.Property},
	}
}

// Check returns a ValidationError when the vector is not normalized or
// carries a non-finite component.
func (v WeightVector) Check() error {
	for _, d := range v.Dimensions() {
		if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
			return Invalid("mac_vector."+d.Name, d.Value, "must be a finite number")
		}
	}
	if !v.IsValid() {
		return &ValidationError{
			Field:  "mac_vector",
			Reason: SumMessage(v.Sum()),
		}
	}
	return nil
}

// SumMessage renders the user-facing message for an unnormalized vector.
func SumMessage(sum float64) string {
	return fmt.Sprintf("MAC vector sums to %.4f, must be 1.0", sum)
}
