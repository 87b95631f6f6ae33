// Package rank maps ratings onto the named tiers shown in match reviews and profiles.
package rank

import "math"

// Tier is a named band of ratings, inclusive on both ends.
type Tier struct {
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Tiers is ordered ascending by Min and partitions [0, +inf) with no gaps.
var Tiers = []Tier{
	{Min: 0, Max: 799, Name: "Newbie", Color: "gray"},
	{Min: 800, Max: 999, Name: "Pupil", Color: "green"},
	{Min: 1000, Max: 1199, Name: "Specialist", Color: "cyan"},
	{Min: 1200, Max: 1399, Name: "Expert", Color: "blue"},
	{Min: 1400, Max: 1599, Name: "Candidate Master", Color: "purple"},
	{Min: 1600, Max: 1899, Name: "Master", Color: "orange"},
	{Min: 1900, Max: 2199, Name: "International Master", Color: "dark-orange"},
	{Min: 2200, Max: math.MaxInt, Name: "Grandmaster", Color: "red"},
}

// Info bundles everything a display needs for one rating.
type Info struct {
	Tier         Tier
	Next         *Tier
	Progress     float64
	PointsToNext int
}

// TierOf returns the tier containing rating. Negative ratings map to the lowest tier.
func TierOf(rating int) Tier {
	return Tiers[indexOf(rating)]
}

// NextTier returns the tier above rating's tier, if any.
func NextTier(rating int) (Tier, bool) {
	i := indexOf(rating)
	if i+1 >= len(Tiers) {
		return Tier{}, false
	}
	return Tiers[i+1], true
}

// ProgressOf returns the percentage of the way from the tier floor to the next tier.
func ProgressOf(rating int) float64 {
	tier := TierOf(rating)
	next, ok := NextTier(rating)
	if !ok {
		return 100
	}
	p := float64(rating-tier.Min) / float64(next.Min-tier.Min)
	return clamp01(p) * 100
}

// PointsToNext returns the rating still needed to reach the next tier, or 0 at the top.
func PointsToNext(rating int) int {
	next, ok := NextTier(rating)
	if !ok {
		return 0
	}
	return next.Min - rating
}

// InfoOf computes tier, next tier, progress and gap in one call.
func InfoOf(rating int) Info {
	info := Info{
		Tier:         TierOf(rating),
		Progress:     ProgressOf(rating),
		PointsToNext: PointsToNext(rating),
	}
	if next, ok := NextTier(rating); ok {
		info.Next = &next
	}
	return info
}

func indexOf(rating int) int {
	for i := len(Tiers) - 1; i >= 0; i-- {
		if rating >= Tiers[i].Min {
			return i
		}
	}
	return 0
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
