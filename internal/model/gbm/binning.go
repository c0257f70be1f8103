package gbm

import "sort"

// binner maps raw feature values to histogram bins. A value v falls in the
// first bin b with v <= cuts[b]; values above every cut fall in len(cuts).
type binner struct {
	cuts [][]float64
}

func newBinner(X [][]float64, maxBins int) *binner {
	if len(X) == 0 {
		return &binner{}
	}
	width := len(X[0])
	b := &binner{cuts: make([][]float64, width)}
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		b.cuts[j] = cutPoints(col, maxBins)
	}
	return b
}

// cutPoints returns at most maxBins-1 thresholds: midpoints between
// consecutive distinct values, thinned to evenly spaced ranks when there
// are too many.
func cutPoints(vals []float64, maxBins int) []float64 {
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)

	distinct := s[:0:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			distinct = append(distinct, v)
		}
	}
	if len(distinct) < 2 {
		return nil
	}

	mids := make([]float64, len(distinct)-1)
	for i := range mids {
		mids[i] = (distinct[i] + distinct[i+1]) / 2
	}
	if len(mids) < maxBins {
		return mids
	}

	out := make([]float64, 0, maxBins-1)
	step := float64(len(mids)) / float64(maxBins-1)
	for k := 0; k < maxBins-1; k++ {
		c := mids[int(float64(k)*step)]
		if len(out) == 0 || c > out[len(out)-1] {
			out = append(out, c)
		}
	}
	return out
}

func (b *binner) bin(j int, v float64) int {
	cuts := b.cuts[j]
	return sort.Search(len(cuts), func(i int) bool { return v <= cuts[i] })
}

func (b *binner) bins(j int) int { return len(b.cuts[j]) + 1 }

// transform bins a whole matrix column-major.
func (b *binner) transform(X [][]float64) [][]uint16 {
	out := make([][]uint16, len(b.cuts))
	for j := range b.cuts {
		col := make([]uint16, len(X))
		for i, row := range X {
			col[i] = uint16(b.bin(j, row[j]))
		}
		out[j] = col
	}
	return out
}
