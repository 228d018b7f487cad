// Package merkle builds binary hash trees over a batch's sensor values and
// produces inclusion proofs for individual observations.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

// ErrEmptyBatch is returned when a tree is requested over zero observations.
// An append-created batch always has at least one value, so hitting this is
// an invariant violation upstream.
var ErrEmptyBatch = errors.New("merkle: empty batch")

// Tree is an immutable Merkle tree over a batch's flattened observations.
type Tree struct {
	Root   string
	Leaves []string

	// levels[0] is the padded leaf row; the last level is [Root].
	levels [][]string
}

// LeafHash hashes one observation. The digest covers the literal
// concatenation "<sensorType>:<value>:<RFC3339 timestamp>:<index>", where
// index is the observation's position in the flattened batch sequence.
func LeafHash(sensor types.SensorType, value float64, ts time.Time, index int) string {
	preimage := fmt.Sprintf("%s:%s:%s:%d", sensor, formatValue(value), ts.UTC().Format(time.RFC3339), index)
	sum := sha256.Sum256([]byte(preimage))
	return hex.EncodeToString(sum[:])
}

// BuildTree flattens sensorData to leaves and builds the tree. Sensor types
// are iterated in sorted order and values in ingestion order, so the leaf
// sequence is deterministic for a given batch. ts is the batch window start.
func BuildTree(sensorData map[types.SensorType][]float64, ts time.Time) (*Tree, error) {
	sensors := make([]types.SensorType, 0, len(sensorData))
	for s := range sensorData {
		sensors = append(sensors, s)
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i] < sensors[j] })

	var leaves []string
	index := 0
	for _, s := range sensors {
		for _, v := range sensorData[s] {
			leaves = append(leaves, LeafHash(s, v, ts, index))
			index++
		}
	}
	if len(leaves) == 0 {
		return nil, ErrEmptyBatch
	}

	// Pad to the next power of two by duplicating the final leaf. Zero or
	// empty filler leaves would change the root for single-observation
	// batches depending on tree width.
	padded := make([]string, len(leaves))
	copy(padded, leaves)
	for len(padded) < nextPowerOfTwo(len(padded)) {
		padded = append(padded, padded[len(padded)-1])
	}

	levels := [][]string{padded}
	for level := padded; len(level) > 1; {
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, pairHash(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{
		Root:   levels[len(levels)-1][0],
		Leaves: leaves,
		levels: levels,
	}, nil
}

// Proof returns the sibling hashes along the path from leaf i to the root.
func (t *Tree) Proof(i int) ([]string, error) {
	if i < 0 || i >= len(t.Leaves) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", i, len(t.Leaves))
	}
	proof := make([]string, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := i ^ 1
		proof = append(proof, level[sibling])
		i /= 2
	}
	return proof, nil
}

// Verify recomputes the root from a leaf and its proof using the same
// sorted-pair rule as BuildTree. The pairing rule here must stay the exact
// inverse of the build rule or asymmetric trees fail verification.
func Verify(leaf string, proof []string, root string) bool {
	current := leaf
	for _, sibling := range proof {
		current = pairHash(current, sibling)
	}
	return current == root
}

// pairHash hashes two child digests with the smaller hex string first, so
// the tree is unaffected by left/right ambiguity.
func pairHash(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + b))
	return hex.EncodeToString(sum[:])
}

// formatValue renders a float without a trailing ".0" so 100 and 100.0
// produce the same leaf.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
