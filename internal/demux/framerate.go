package demux

import (
	"sort"

	"github.com/zsiec/flvextract/media"
)

// AverageFrameRate returns (n-1)*1000/(last-first) for n video timestamps in
// milliseconds. It reports false for fewer than two timestamps or when the
// last timestamp does not follow the first.
func AverageFrameRate(ts []uint32) (media.Fraction, bool) {
	if len(ts) < 2 {
		return media.Fraction{}, false
	}
	first, last := ts[0], ts[len(ts)-1]
	if last <= first {
		return media.Fraction{}, false
	}
	f, err := media.NewFraction64(uint64(len(ts)-1)*1000, uint64(last-first))
	if err != nil {
		return media.Fraction{}, false
	}
	return f, true
}

// TrueFrameRate estimates the nominal frame rate from the distribution of
// frame durations. Each positive delta d is counted together with d+1 so
// that rates whose durations alternate between two integer milliseconds
// (33/34 for 29.97) resolve exactly. The smallest d whose combined count
// reaches a tenth of the frame count wins.
func TrueFrameRate(ts []uint32) (media.Fraction, bool) {
	if len(ts) < 2 {
		return media.Fraction{}, false
	}

	hist := make(map[uint32]uint64)
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			continue
		}
		hist[ts[i]-ts[i-1]]++
	}

	deltas := make([]uint32, 0, len(hist))
	for d := range hist {
		deltas = append(deltas, d)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })

	threshold := uint64(len(ts)) / 10
	for _, d := range deltas {
		n0, n1 := hist[d], hist[d+1]
		if n0+n1 < threshold {
			continue
		}
		num := (n0 + n1) * 1000
		den := uint64(d)*n0 + (uint64(d)+1)*n1
		f, err := media.NewFraction64(num, den)
		if err != nil {
			return media.Fraction{}, false
		}
		return f, true
	}
	return media.Fraction{}, false
}
