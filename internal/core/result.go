package core

// Result carries either a value or the error that prevented producing it.
// It is the element type of snapshot streams and asynchronous calls.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps a failure.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// Get unpacks the result into the usual value, error pair.
func (r Result[T]) Get() (T, error) {
	return r.Value, r.Err
}
