package gbm

// node is one tree node. Internal nodes send rows with
// value <= Threshold to Left.
type node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Gain      float64 `json:"gain,omitempty"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// builder grows one regression tree on squared-loss gradients. The hessian
// of squared loss is 1, so a node's hessian sum is its row count.
type builder struct {
	params Params
	binner *binner
	binned [][]uint16
	grad   []float64
}

type split struct {
	ok      bool
	feature int
	bin     int
	gain    float64
}

func (b *builder) build(rows []int) tree {
	var t tree
	b.grow(&t, rows, 0)
	return t
}

func (b *builder) grow(t *tree, rows []int, depth int) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, node{})

	var g float64
	for _, i := range rows {
		g += b.grad[i]
	}
	h := float64(len(rows))

	leaf := node{Leaf: true, Value: -g / (h + b.params.Lambda) * b.params.LearningRate}
	if depth >= b.params.MaxDepth || len(rows) < 2*b.params.MinSamplesLeaf {
		t.Nodes[idx] = leaf
		return idx
	}
	best := b.bestSplit(rows, g, h)
	if !best.ok {
		t.Nodes[idx] = leaf
		return idx
	}

	col := b.binned[best.feature]
	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, i := range rows {
		if int(col[i]) <= best.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(t, left, depth+1)
	r := b.grow(t, right, depth+1)
	t.Nodes[idx] = node{
		Feature:   best.feature,
		Threshold: b.binner.cuts[best.feature][best.bin],
		Left:      l,
		Right:     r,
		Gain:      best.gain,
	}
	return idx
}

func (b *builder) bestSplit(rows []int, g, h float64) split {
	lambda := b.params.Lambda
	minLeaf := float64(b.params.MinSamplesLeaf)
	parent := g * g / (h + lambda)

	var best split
	for j, col := range b.binned {
		nb := b.binner.bins(j)
		if nb < 2 {
			continue
		}
		gh := make([]float64, nb)
		cnt := make([]float64, nb)
		for _, i := range rows {
			gh[col[i]] += b.grad[i]
			cnt[col[i]]++
		}

		var gl, hl float64
		for bin := 0; bin < nb-1; bin++ {
			gl += gh[bin]
			hl += cnt[bin]
			hr := h - hl
			if hl < minLeaf || hr < minLeaf {
				continue
			}
			gr := g - gl
			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > b.params.MinGain && gain > best.gain {
				best = split{ok: true, feature: j, bin: bin, gain: gain}
			}
		}
	}
	return best
}
