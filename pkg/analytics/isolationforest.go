/*
Copyright 2026 The FactoryOps Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package analytics

import (
	"math"
	"math/rand"
	"sort"
)

// Isolation forest: anomalies isolate in fewer random splits than inliers,
// so short average path lengths score close to 1.

const (
	forestTrees      = 100
	forestSampleSize = 256
)

type isoNode struct {
	left, right *isoNode
	splitCol    int
	splitValue  float64
	size        int
}

// IsolationForest scores rows by how quickly random axis-aligned splits
// isolate them.
type IsolationForest struct {
	trees      []*isoNode
	sampleSize int
}

// FitIsolationForest trains a forest on X with a fixed seed per job, so a
// retried job reproduces its result.
func FitIsolationForest(X [][]float64, seed int64) *IsolationForest {
	rng := rand.New(rand.NewSource(seed))
	sampleSize := forestSampleSize
	if len(X) < sampleSize {
		sampleSize = len(X)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))

	forest := &IsolationForest{sampleSize: sampleSize}
	for t := 0; t < forestTrees; t++ {
		sample := make([][]float64, sampleSize)
		for i := range sample {
			sample[i] = X[rng.Intn(len(X))]
		}
		forest.trees = append(forest.trees, buildIsoTree(sample, 0, heightLimit, rng))
	}
	return forest
}

func buildIsoTree(sample [][]float64, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(sample) <= 1 {
		return &isoNode{size: len(sample)}
	}
	cols := len(sample[0])
	col := rng.Intn(cols)

	lo, hi := sample[0][col], sample[0][col]
	for _, row := range sample {
		lo = math.Min(lo, row[col])
		hi = math.Max(hi, row[col])
	}
	if lo == hi {
		return &isoNode{size: len(sample)}
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range sample {
		if row[col] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &isoNode{
		splitCol:   col,
		splitValue: split,
		left:       buildIsoTree(left, depth+1, limit, rng),
		right:      buildIsoTree(right, depth+1, limit, rng),
		size:       len(sample),
	}
}

// Score returns the anomaly score of one row in (0, 1); higher is more
// anomalous.
func (f *IsolationForest) Score(row []float64) float64 {
	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/avgPathLength(f.sampleSize))
}

// Scores scores every row of X.
func (f *IsolationForest) Scores(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = f.Score(row)
	}
	return out
}

func pathLength(node *isoNode, row []float64, depth float64) float64 {
	if node.left == nil {
		return depth + avgPathLength(node.size)
	}
	if row[node.splitCol] < node.splitValue {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

// AnomalyThreshold returns the score cutoff that labels the top
// contamination fraction of rows anomalous.
func AnomalyThreshold(scores []float64, contamination float64) float64 {
	if len(scores) == 0 {
		return math.Inf(1)
	}
	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	cutoff := int(math.Ceil(contamination * float64(len(sorted))))
	if cutoff < 1 {
		cutoff = 1
	}
	if cutoff > len(sorted) {
		cutoff = len(sorted)
	}
	return sorted[cutoff-1]
}
