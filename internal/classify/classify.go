// Package classify provides the litter classification oracle and the fixed
// classification-to-points lookup.
//
// The pipeline treats classification as an opaque collaborator: it only
// requires that identical input yields identical output. The default
// implementation derives the label and confidence from the image digest
// itself, which guarantees that property without any model dependency.
package classify

import (
	"encoding/binary"

	"github.com/anonpick/anonpick/pkg/digest"
)

// Label is a litter classification label.
type Label string

// Known labels, in the fixed order the hash oracle indexes into.
var Labels = []Label{
	"plastic_bottle",
	"plastic_bag",
	"cigarette_butt",
	"food_wrapper",
	"glass_bottle",
	"can",
	"paper",
	"cardboard",
	"organic_waste",
}

// DefaultPoints is awarded when a label has no table entry.
const DefaultPoints = 10

// pointsTable maps each label to its reward points.
var pointsTable = map[Label]int{
	"plastic_bottle": 15,
	"plastic_bag":    10,
	"cigarette_butt": 5,
	"food_wrapper":   8,
	"glass_bottle":   12,
	"can":            10,
	"paper":          5,
	"cardboard":      8,
	"organic_waste":  3,
}

// Points returns the reward points for a label, falling back to
// DefaultPoints for unrecognized labels.
func Points(label Label) int {
	if p, ok := pointsTable[label]; ok {
		return p
	}
	return DefaultPoints
}

// Table returns a copy of the points table, for config overlays.
func Table() map[Label]int {
	out := make(map[Label]int, len(pointsTable))
	for k, v := range pointsTable {
		out[k] = v
	}
	return out
}

// Classifier is the classification collaborator consumed by the pipeline.
type Classifier interface {
	// Classify returns a label and a confidence score in [0,1].
	// Identical input must yield identical output.
	Classify(imageHash digest.Hash) (Label, float64)
}

// HashClassifier derives the classification deterministically from the
// image digest: the first 8 bytes select the label, the next 8 set the
// confidence in [0.5, 1.0).
type HashClassifier struct{}

// Classify implements Classifier.
func (HashClassifier) Classify(imageHash digest.Hash) (Label, float64) {
	raw, err := imageHash.Bytes()
	if err != nil || len(raw) < 16 {
		return "unknown", 0.5
	}

	idx := binary.BigEndian.Uint64(raw[:8]) % uint64(len(Labels))
	frac := float64(binary.BigEndian.Uint64(raw[8:16])%10000) / 10000.0
	confidence := 0.5 + frac/2

	return Labels[idx], confidence
}
