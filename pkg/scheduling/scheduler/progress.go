package scheduler

// Progress is an opaque payload a Task emits during execution. The Task owns
// it from SendProgress until delivery; Release is then called exactly once,
// whether or not a ProgressReceiver saw it.
type Progress interface {
	Release()
}

// Payload is a Progress carrying a typed value and an optional release func.
type Payload[T any] struct {
	Value     T
	OnRelease func(T) `json:"-"`
}

// NewPayload wraps value as a Progress.
func NewPayload[T any](value T, release func(T)) *Payload[T] {
	return &Payload[T]{Value: value, OnRelease: release}
}

// Release implements Progress.
func (p *Payload[T]) Release() {
	if p.OnRelease != nil {
		p.OnRelease(p.Value)
	}
}
