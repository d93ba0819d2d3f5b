package qdrant

import (
	"fmt"
	"math"
	"strings"
)

// Distance is the collection metric; it decides how raw scores map to [0,1].
type Distance string

const (
	DistanceCosine    Distance = "Cosine"
	DistanceDot       Distance = "Dot"
	DistanceEuclid    Distance = "Euclid"
	DistanceManhattan Distance = "Manhattan"
)

func ParseDistance(raw string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cosine":
		return DistanceCosine, nil
	case "dot":
		return DistanceDot, nil
	case "euclid", "euclidean":
		return DistanceEuclid, nil
	case "manhattan":
		return DistanceManhattan, nil
	default:
		return "", fmt.Errorf("unsupported qdrant distance %q", raw)
	}
}

// Normalize maps a raw Qdrant score to a similarity in [0,1]. Cosine is
// clamped, dot products go through a logistic, distances use 1/(1+d).
func (d Distance) Normalize(raw float64) float64 {
	if math.IsNaN(raw) {
		return 0
	}
	switch d {
	case DistanceDot:
		return 1 / (1 + math.Exp(-raw))
	case DistanceEuclid, DistanceManhattan:
		return 1 / (1 + math.Max(raw, 0))
	default:
		return math.Max(0, math.Min(1, raw))
	}
}
