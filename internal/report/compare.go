package report

import (
	"math"
	"sort"

	"github.com/nao1215/qprovider/internal/provider"
)

// ComparisonRow is one outcome of a Comparison.
type ComparisonRow struct {
	Outcome string  `json:"outcome"`
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Delta   float64 `json:"delta"`
}

// Comparison compares two count distributions.
type Comparison struct {
	LeftLabel  string          `json:"left_label"`
	RightLabel string          `json:"right_label"`
	LeftShots  int             `json:"left_shots"`
	RightShots int             `json:"right_shots"`
	Distance   float64         `json:"total_variation_distance"`
	Rows       []ComparisonRow `json:"rows"`
}

// Compare builds the comparison of left and right. Rows are ordered by
// the absolute difference, largest first, then by outcome.
func Compare(leftLabel string, left provider.Counts, rightLabel string, right provider.Counts) *Comparison {
	lp, rp := left.Probabilities(), right.Probabilities()

	outcomes := make(map[string]struct{}, len(lp)+len(rp))
	for k := range lp {
		outcomes[k] = struct{}{}
	}
	for k := range rp {
		outcomes[k] = struct{}{}
	}

	c := &Comparison{
		LeftLabel:  leftLabel,
		RightLabel: rightLabel,
		LeftShots:  left.Shots(),
		RightShots: right.Shots(),
		Rows:       make([]ComparisonRow, 0, len(outcomes)),
	}
	for k := range outcomes {
		c.Rows = append(c.Rows, ComparisonRow{
			Outcome: k,
			Left:    lp[k],
			Right:   rp[k],
			Delta:   rp[k] - lp[k],
		})
	}
	sort.Slice(c.Rows, func(i, j int) bool {
		di, dj := math.Abs(c.Rows[i].Delta), math.Abs(c.Rows[j].Delta)
		if di != dj {
			return di > dj
		}
		return c.Rows[i].Outcome < c.Rows[j].Outcome
	})

	c.Distance = TotalVariationDistance(left, right)
	return c
}

// TotalVariationDistance returns half the L1 distance between the two
// normalised distributions: 0 for identical, 1 for disjoint. An empty
// distribution is at distance 1 from a non-empty one and 0 from another
// empty one.
func TotalVariationDistance(a, b provider.Counts) float64 {
	if a.Shots() == 0 || b.Shots() == 0 {
		if a.Shots() == b.Shots() {
			return 0
		}
		return 1
	}

	pa, pb := a.Probabilities(), b.Probabilities()
	var sum float64
	for k, p := range pa {
		sum += math.Abs(p - pb[k])
	}
	for k, p := range pb {
		if _, ok := pa[k]; !ok {
			sum += p
		}
	}
	return sum / 2
}
