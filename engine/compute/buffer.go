package compute

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"golang.org/x/exp/constraints"
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniformTexel
	BufferUsageStorageTexel
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageIndirect

	// Every usage, for buffers whose role is not known up front.
	BufferUsageAll = BufferUsageTransferSrc | BufferUsageTransferDst | BufferUsageUniformTexel |
		BufferUsageStorageTexel | BufferUsageUniform | BufferUsageStorage | BufferUsageIndex |
		BufferUsageVertex | BufferUsageIndirect
)

func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

// Element is a numeric type that can live in a buffer.
type Element interface {
	constraints.Integer | constraints.Float
}

// TypedBuffer views a host-visible buffer as a sequence of T.
type TypedBuffer[T Element] struct {
	ID     uuid.UUID
	ctx    *Context
	buffer Buffer
	length int
}

// FromData allocates a buffer holding a single value.
func FromData[T Element](ctx *Context, usage BufferUsage, value T) (*TypedBuffer[T], error) {
	return FromSlice(ctx, usage, []T{value})
}

// FromSlice allocates a buffer holding a copy of values.
func FromSlice[T Element](ctx *Context, usage BufferUsage, values []T) (*TypedBuffer[T], error) {
	const op = "compute.FromSlice"

	if len(values) == 0 {
		return nil, core.NewError(core.KindConfiguration, op, fmt.Errorf("cannot allocate an empty buffer"))
	}
	size := uint64(len(values)) * uint64(unsafe.Sizeof(values[0]))

	b, err := ctx.createBuffer(size, usage)
	if err != nil {
		return nil, err
	}
	tb := &TypedBuffer[T]{
		ID:     uuid.New(),
		ctx:    ctx,
		buffer: b,
		length: len(values),
	}
	copy(tb.elements(), values)

	core.LogDebug("Buffer %s allocated: %d x %T (%d bytes).", tb.ID, tb.length, values[0], size)
	return tb, nil
}

// Range returns start, start+1, ... up to but excluding end. The length is
// ceil(end-start); float values past the type's precision repeat.
func Range[T Element](start, end T) []T {
	if end <= start {
		return []T{}
	}
	n := int(math.Ceil(float64(end) - float64(start)))
	out := make([]T, n)
	for i := range out {
		out[i] = start + T(i)
	}
	return out
}

func (b *TypedBuffer[T]) Len() int {
	return b.length
}

func (b *TypedBuffer[T]) Raw() Buffer {
	return b.buffer
}

// Read copies the buffer contents out.
func (b *TypedBuffer[T]) Read() []T {
	out := make([]T, b.length)
	copy(out, b.elements())
	return out
}

// Write replaces the buffer contents; values must have exactly Len elements.
func (b *TypedBuffer[T]) Write(values []T) error {
	if len(values) != b.length {
		return core.Errorf(core.KindConfiguration, "compute.TypedBuffer.Write", "got %d values for a buffer of %d", len(values), b.length)
	}
	copy(b.elements(), values)
	return nil
}

// Update mutates the contents in place.
func (b *TypedBuffer[T]) Update(fn func(data []T)) {
	fn(b.elements())
}

func (b *TypedBuffer[T]) elements() []T {
	return Elements[T](b.buffer)[:b.length]
}

// Elements reinterprets the mapped memory of b as a slice of T. Trailing
// bytes that do not fill a whole element are not part of the slice.
func Elements[T Element](b Buffer) []T {
	raw := b.Bytes()
	var zero T
	n := len(raw) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(raw))), n)
}

// Destroy releases the buffer ahead of its context.
func (b *TypedBuffer[T]) Destroy() {
	b.ctx.release(b.buffer)
	b.length = 0
}
