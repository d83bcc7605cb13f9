package model

import (
	"container/heap"
	"math/rand"
	"sort"
)

// Node is one node of a fitted decision tree. Leaves carry Feature == -1 and
// a prediction in Value; internal nodes route on Feature/Threshold. The short
// JSON keys keep serialized artifacts compact.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Value     float64 `json:"v,omitempty"`
	Left      *Node   `json:"l,omitempty"`
	Right     *Node   `json:"r,omitempty"`
}

// predict routes a row to its leaf. Rows with a feature value equal to the
// threshold go left, matching the <= convention used during growth.
func (n *Node) predict(row []float64) float64 {
	for n.Feature >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// leaves counts the leaf nodes under n.
func (n *Node) leaves() int {
	if n == nil {
		return 0
	}
	if n.Feature < 0 {
		return 1
	}
	return n.Left.leaves() + n.Right.leaves()
}

// depth returns the length of the longest root-to-leaf path, 0 for a stump.
func (n *Node) depth() int {
	if n == nil || n.Feature < 0 {
		return 0
	}
	l, r := n.Left.depth(), n.Right.depth()
	if l > r {
		return l + 1
	}
	return r + 1
}

// growConfig bounds a single tree fit.
type growConfig struct {
	maxDepth        int   // 0 = unbounded
	maxLeaves       int   // 0 = unbounded
	minSamplesSplit int   // samples required in a node to consider a split
	minSamplesLeaf  int   // samples required on each side of a split
	maxFeatures     int   // candidate features drawn per node, 0 = all
	features        []int // allowed feature indices, nil = all
	rng             *rand.Rand
}

// splitTask is a frontier node together with the best split found for it.
type splitTask struct {
	node    *Node
	rows    []int
	depth   int
	gain    float64
	feature int
	thresh  float64
}

// taskHeap orders frontier nodes by descending gain, so a leaf budget is
// spent on the most impure regions first.
type taskHeap []*splitTask

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].gain > h[j].gain }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)        { *h = append(*h, x.(*splitTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// growTree fits a weighted binary tree over the given row multiset. Splits
// minimize the weighted squared error of the target; for {0,1} targets this
// selects exactly the same splits as the Gini criterion, so one grower serves
// the bagged classifier and the gradient stages alike. leafValue computes the
// prediction stored at a leaf from the rows that reached it.
//
// Growth is best-first: every splittable frontier node is scored and the
// highest-gain split is applied until the leaf budget or the impurity runs
// out. Without a budget this yields the same tree as depth-first recursion.
func growTree(x [][]float64, target, w []float64, rows []int, cfg growConfig, leafValue func(rows []int) float64) *Node {
	root := &Node{Feature: -1, Value: leafValue(rows)}
	h := &taskHeap{}
	if t := bestSplit(x, target, w, rows, 0, cfg); t != nil {
		t.node = root
		heap.Push(h, t)
	}
	nLeaves := 1
	for h.Len() > 0 {
		if cfg.maxLeaves > 0 && nLeaves >= cfg.maxLeaves {
			break
		}
		t := heap.Pop(h).(*splitTask)

		left, right := partition(x, t.rows, t.feature, t.thresh)
		t.node.Feature = t.feature
		t.node.Threshold = t.thresh
		t.node.Value = 0
		t.node.Left = &Node{Feature: -1, Value: leafValue(left)}
		t.node.Right = &Node{Feature: -1, Value: leafValue(right)}
		nLeaves++

		if c := bestSplit(x, target, w, left, t.depth+1, cfg); c != nil {
			c.node = t.node.Left
			heap.Push(h, c)
		}
		if c := bestSplit(x, target, w, right, t.depth+1, cfg); c != nil {
			c.node = t.node.Right
			heap.Push(h, c)
		}
	}
	return root
}

// minGain rejects splits whose improvement is within floating-point noise of
// zero, which also stops growth on pure or constant nodes.
const minGain = 1e-12

// bestSplit scans the candidate features of a node and returns the split with
// the largest weighted squared-error reduction, or nil when the node must
// stay a leaf. Equal gains keep the lowest feature index.
func bestSplit(x [][]float64, target, w []float64, rows []int, depth int, cfg growConfig) *splitTask {
	if len(rows) < cfg.minSamplesSplit || len(rows) < 2*cfg.minSamplesLeaf {
		return nil
	}
	if cfg.maxDepth > 0 && depth >= cfg.maxDepth {
		return nil
	}

	var sw, swt float64
	for _, r := range rows {
		sw += w[r]
		swt += w[r] * target[r]
	}
	if sw <= 0 {
		return nil
	}
	parent := swt * swt / sw

	feats := cfg.features
	if feats == nil {
		feats = make([]int, len(x[0]))
		for i := range feats {
			feats[i] = i
		}
	}
	if cfg.maxFeatures > 0 && cfg.maxFeatures < len(feats) && cfg.rng != nil {
		perm := cfg.rng.Perm(len(feats))
		sub := make([]int, cfg.maxFeatures)
		for i := range sub {
			sub[i] = feats[perm[i]]
		}
		sort.Ints(sub)
		feats = sub
	}

	ord := make([]int, len(rows))
	best := splitTask{rows: rows, depth: depth, feature: -1}
	for _, f := range feats {
		copy(ord, rows)
		sort.Slice(ord, func(a, b int) bool { return x[ord[a]][f] < x[ord[b]][f] })

		var wl, wtl float64
		for i := 0; i < len(ord)-1; i++ {
			r := ord[i]
			wl += w[r]
			wtl += w[r] * target[r]

			n := i + 1
			if n < cfg.minSamplesLeaf || len(ord)-n < cfg.minSamplesLeaf {
				continue
			}
			vl, vr := x[ord[i]][f], x[ord[i+1]][f]
			if vl >= vr {
				continue // no boundary between equal values
			}
			wr := sw - wl
			if wl <= 0 || wr <= 0 {
				continue
			}
			wtr := swt - wtl
			gain := wtl*wtl/wl + wtr*wtr/wr - parent
			if gain > best.gain && gain > minGain {
				best.gain = gain
				best.feature = f
				best.thresh = vl + (vr-vl)/2
			}
		}
	}
	if best.feature < 0 {
		return nil
	}
	return &best
}

// partition splits rows into the left (value <= threshold) and right sides.
func partition(x [][]float64, rows []int, feature int, thresh float64) (left, right []int) {
	for _, r := range rows {
		if x[r][feature] <= thresh {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}

// allRows returns the identity row index set [0, n).
func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// meanLeaf returns a leaf-value function computing the weighted mean of the
// target over the rows in the leaf. For {0,1} targets this is the positive
// class probability.
func meanLeaf(target, w []float64) func(rows []int) float64 {
	return func(rows []int) float64 {
		var sw, swt float64
		for _, r := range rows {
			sw += w[r]
			swt += w[r] * target[r]
		}
		if sw <= 0 {
			return 0
		}
		return swt / sw
	}
}
