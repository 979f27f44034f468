package solver

import (
	"encoding/json"
	"fmt"
)

// Leg is one distance matrix entry: travel distance and duration from one
// node to another.
type Leg struct {
	DistM  float64 `json:"distM"`
	DurSec float64 `json:"durSec"`
}

// Matrix is a dense N×N travel matrix, read-only once a solve starts. It may
// be asymmetric.
type Matrix struct {
	n    int
	legs []Leg
}

func NewMatrix(n int) Matrix {
	return Matrix{n: n, legs: make([]Leg, n*n)}
}

func (m Matrix) Size() int { return m.n }

func (m Matrix) At(i, j int) Leg { return m.legs[i*m.n+j] }

func (m *Matrix) Set(i, j int, l Leg) { m.legs[i*m.n+j] = l }

type matrixWire struct {
	N    int   `json:"n"`
	Legs []Leg `json:"legs"`
}

func (m Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(matrixWire{N: m.n, Legs: m.legs})
}

func (m *Matrix) UnmarshalJSON(data []byte) error {
	var w matrixWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Legs) != w.N*w.N {
		return fmt.Errorf("matrix: %d legs for size %d", len(w.Legs), w.N)
	}
	m.n, m.legs = w.N, w.Legs
	return nil
}

// Validate enforces the matrix invariants: non-negative entries and a zero
// diagonal.
func (m Matrix) Validate() error {
	for i := 0; i < m.n; i++ {
		for j := 0; j < m.n; j++ {
			l := m.At(i, j)
			if l.DistM < 0 || l.DurSec < 0 {
				return fmt.Errorf("%w: negative matrix entry at (%d,%d)", ErrInvalidInput, i, j)
			}
		}
		if d := m.At(i, i); d.DistM != 0 || d.DurSec != 0 {
			return fmt.Errorf("%w: non-zero diagonal at (%d,%d)", ErrInvalidInput, i, i)
		}
	}
	return nil
}
