package dexscreener

// Status tags the outcome of a provider call.
type Status int

const (
	// StatusOK means the provider answered with data.
	StatusOK Status = iota
	// StatusEmpty means the provider answered but had no data.
	StatusEmpty
	// StatusFailed means the call failed and a zero value was substituted.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of a provider call. Err is set only for StatusFailed.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// Failed reports whether the call failed.
func (r Result[T]) Failed() bool {
	return r.Status == StatusFailed
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

func empty[T any]() Result[T] {
	return Result[T]{Status: StatusEmpty}
}

func failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusFailed, Err: err}
}
