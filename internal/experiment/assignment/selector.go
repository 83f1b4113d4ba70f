package assignment

import (
	"blaze/internal/experiment/models"
)

// SelectVariant walks the cumulative weight distribution: the first variant whose
// cumulative weight strictly exceeds draw wins. draw is expected in [0,1).
//
// If rounding leaves draw at or above the total weight, the last variant wins
// (see FallbackLastVariant). variants must be non-empty.
func SelectVariant(variants []models.Variant, draw float64) models.Variant {
	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.Weight
		if draw < cumulative {
			return v
		}
	}
	return FallbackLastVariant(variants)
}

// FallbackLastVariant is the tie-break used when floating-point drift leaves the
// draw beyond the summed weights.
func FallbackLastVariant(variants []models.Variant) models.Variant {
	return variants[len(variants)-1]
}
