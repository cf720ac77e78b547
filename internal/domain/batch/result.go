// Package batch holds per-item outcome types for batched embedding runs.
package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the embedding outcome for one input item, aligned by Index
// to the submitted text slice.
type Result struct {
	index  int
	status ItemStatus
	vector []float32
	err    error
}

// NewVector creates a successful embedding result.
func NewVector(index int, vector []float32) Result {
	return Result{index: index, status: StatusOK, vector: vector}
}

// NewError creates a failed embedding result.
func NewError(index int, err error) Result {
	return Result{index: index, status: StatusError, err: err}
}

// Index returns the position of the item in the submitted input.
func (r Result) Index() int { return r.index }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Vector returns the embedding, nil on failure.
func (r Result) Vector() []float32 { return r.vector }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Failed reports whether the item did not produce a vector.
func (r Result) Failed() bool { return r.status == StatusError }
