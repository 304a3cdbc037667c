// SPDX-License-Identifier: MIT
package analysis

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ring is a fixed-capacity buffer of the most recent float64 values. All
// statistics are order-independent, so values are never unrolled.
type ring struct {
	data  []float64
	pos   int
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{data: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.data[r.pos] = v
	r.pos = (r.pos + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// values returns the filled part of the buffer in storage order.
func (r *ring) values() []float64 {
	return r.data[:r.count]
}

func (r *ring) len() int {
	return r.count
}

func (r *ring) mean() float64 {
	if r.count == 0 {
		return 0
	}
	return floats.Sum(r.values()) / float64(r.count)
}

func (r *ring) minMax() (float64, float64) {
	if r.count == 0 {
		return 0, 0
	}
	v := r.values()
	return floats.Min(v), floats.Max(v)
}

func (r *ring) reset() {
	clear(r.data)
	r.pos = 0
	r.count = 0
}

// meanStd returns the mean and sample standard deviation of x. Fewer than two
// values have zero spread.
func meanStd(x []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
