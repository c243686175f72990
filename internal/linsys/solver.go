package linsys

import (
	"github.com/james-bowman/sparse"
	"github.com/notargets/tetrapart/internal/config"
	"gonum.org/v1/gonum/mat"
)

// SparseSolver is the external collaborator spec.md S4.6 delegates the
// actual linear algebra to: "create, set(row,col,val), assemble,
// solve(A,b,x), get(rows,vals)", all in 1-based row/column indices. The
// core never assumes a particular factorization or iterative method.
type SparseSolver interface {
	Create(n int)
	Set(row, col int, val float64)
	Assemble()
	Solve(b []float64) ([]float64, error)
	Get(rows []int, x []float64) []float64
}

// DenseGaussSolver backs SparseSolver with github.com/james-bowman/sparse
// for triplet assembly (the same sparse.DOK the teacher's utils.DOK wraps)
// and gonum.org/v1/gonum/mat for the dense solve, following
// utils.DOK.Assign's index/value composition generalized to one Set call
// per (row, col) pair per scalar component. "General linear algebra" being
// a spec non-goal, this solves the local square block directly rather than
// implementing a distributed Krylov method.
type DenseGaussSolver struct {
	n     int
	dok   *sparse.DOK
	lastX []float64
}

func (d *DenseGaussSolver) Create(n int) {
	d.n = n
	d.dok = sparse.NewDOK(n, n)
}

// Set assigns A[row,col]=val using 1-based indices, per the interface
// contract; rows/cols outside [1,n] are a programming error.
func (d *DenseGaussSolver) Set(row, col int, val float64) {
	d.dok.Set(row-1, col-1, val)
}

func (d *DenseGaussSolver) Assemble() {
	// sparse.DOK is write-optimized; nothing further is needed before
	// converting to a dense representation for the solve step below. Kept
	// as its own call so the state machine's "assemble" event-count (S3 of
	// the solve sequence) has something concrete to depend on.
}

// Solve converts the assembled triplets to a dense matrix and solves Ax=b
// via gonum's mat.VecDense.SolveVec, returning x. A singular or non-square system
// is reported as a config.SolverError rather than panicking.
func (d *DenseGaussSolver) Solve(b []float64) ([]float64, error) {
	if len(b) != d.n {
		return nil, &config.SolverError{Reason: "rhs length does not match system size"}
	}
	dense := mat.NewDense(d.n, d.n, nil)
	for i := 0; i < d.n; i++ {
		for j := 0; j < d.n; j++ {
			dense.Set(i, j, d.dok.At(i, j))
		}
	}
	rhs := mat.NewVecDense(d.n, b)
	var x mat.VecDense
	if err := x.SolveVec(dense, rhs); err != nil {
		return nil, &config.SolverError{Reason: "dense solve failed: " + err.Error()}
	}
	out := make([]float64, d.n)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	d.lastX = out
	return out, nil
}

// Get recovers the last solve's values at the 1-based rows requested,
// writing into and returning x.
func (d *DenseGaussSolver) Get(rows []int, x []float64) []float64 {
	for i, r := range rows {
		x[i] = d.lastX[r-1]
	}
	return x
}
