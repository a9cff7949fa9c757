package sections

// HHI is the Herfindahl-Hirschman index of a set of non-negative sizes:
// the sum of squared shares. 1 means a single counterparty, values near 0 a
// dispersed book. Returns 0 when the sizes sum to zero.
func HHI(sizes []float64) float64 {
	var total float64
	for _, s := range sizes {
		if s > 0 {
			total += s
		}
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, s := range sizes {
		if s <= 0 {
			continue
		}
		share := s / total
		h += share * share
	}
	return h
}
