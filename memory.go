package guda

import (
	"fmt"
	"sync"
	"unsafe"

	"k8s.io/klog/v2"
)

// MemcpyKind specifies the direction of memory transfer.
// In GUDA's unified memory model all memory is CPU-accessible; the kind
// is checked against the operand types for CUDA compatibility.
type MemcpyKind int

const (
	MemcpyHostToHost     MemcpyKind = iota // Host to host transfer
	MemcpyHostToDevice                     // Host to device transfer
	MemcpyDeviceToHost                     // Device to host transfer
	MemcpyDeviceToDevice                   // Device to device transfer
	MemcpyDefault                          // Default transfer (infer direction)
)

// String returns the CUDA-style name of the transfer direction
func (k MemcpyKind) String() string {
	switch k {
	case MemcpyHostToHost:
		return "HostToHost"
	case MemcpyHostToDevice:
		return "HostToDevice"
	case MemcpyDeviceToHost:
		return "DeviceToHost"
	case MemcpyDeviceToDevice:
		return "DeviceToDevice"
	case MemcpyDefault:
		return "Default"
	default:
		return fmt.Sprintf("MemcpyKind(%d)", int(k))
	}
}

// MemoryPool tracks device memory owned by a context. Memory is released
// as soon as it is freed; nothing is cached for later allocations, so the
// live statistics always describe exactly what callers still hold.
type MemoryPool struct {
	mu         sync.Mutex
	allocated  map[uintptr]*allocation
	released   int
	limit      uint64
	totalAlloc int64
	peakAlloc  int64
	liveCount  int
}

type allocation struct {
	buf  []byte
	size int
	used bool
}

// MemoryStats is a snapshot of a context's device memory accounting.
type MemoryStats struct {
	Live        int64 // Bytes currently allocated
	Peak        int64 // High-water mark of Live
	Allocations int   // Number of live allocations
	Limit       uint64
}

// NewMemoryPool creates a memory pool that refuses to hold more than limit
// bytes at once.
func NewMemoryPool(limit uint64) *MemoryPool {
	return &MemoryPool{
		allocated: make(map[uintptr]*allocation),
		limit:     limit,
	}
}

// Malloc allocates device memory of the specified size in bytes.
//
// Example:
//
//	ptr, err := ctx.Malloc(1024 * 4) // Allocate 1024 float32s
//	if err != nil {
//	    return err
//	}
//	defer ctx.Free(ptr)
func (ctx *Context) Malloc(size int) (DevicePtr, error) {
	if ctx.destroyed.Load() {
		return DevicePtr{}, ErrContextDestroyed
	}
	return ctx.memory.Allocate(size)
}

// Free releases device memory allocated by Malloc.
// It is safe to call Free with a zero DevicePtr.
func (ctx *Context) Free(ptr DevicePtr) error {
	return ctx.memory.Free(ptr)
}

// SetMemoryLimit caps the device memory the context may hold at once.
// A zero limit restores the device total.
func (ctx *Context) SetMemoryLimit(bytes uint64) {
	if bytes == 0 {
		bytes = ctx.device.TotalMem
	}
	ctx.memory.mu.Lock()
	ctx.memory.limit = bytes
	ctx.memory.mu.Unlock()
}

// MemoryStats returns the context's current memory accounting
func (ctx *Context) MemoryStats() MemoryStats {
	return ctx.memory.Stats()
}

// Memcpy copies memory between host and device.
// Supports various combinations of DevicePtr and Go slices.
//
// Parameters:
//   - dst: Destination (DevicePtr or Go slice)
//   - src: Source (DevicePtr or Go slice)
//   - size: Number of bytes to copy
//   - kind: Transfer direction
//
// The copy is ordered after work already queued on the default stream and
// Memcpy returns once it has completed.
//
// Example:
//
//	h_data := make([]float32, 1024)
//	d_data, _ := ctx.Malloc(1024 * 4)
//	ctx.Memcpy(d_data, h_data, 1024*4, guda.MemcpyHostToDevice)
func (ctx *Context) Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	if ctx.destroyed.Load() {
		return ErrContextDestroyed
	}
	if size < 0 {
		return NewInvalidArgError("Memcpy", fmt.Sprintf("negative size: %d", size))
	}
	if err := checkDirection(dst, src, kind); err != nil {
		return err
	}

	dstBytes, err := ctx.bytesOf("dst", dst)
	if err != nil {
		return err
	}
	srcBytes, err := ctx.bytesOf("src", src)
	if err != nil {
		return err
	}
	if size > len(dstBytes) || size > len(srcBytes) {
		return NewInvalidArgError("Memcpy", fmt.Sprintf(
			"copy of %d bytes exceeds dst (%d) or src (%d)", size, len(dstBytes), len(srcBytes)))
	}
	if size == 0 {
		return nil
	}

	done := make(chan struct{})
	ctx.defaultStream.Submit(func() error {
		copy(dstBytes[:size], srcBytes[:size])
		close(done)
		return nil
	})
	<-done

	klog.V(2).Infof("memcpy %s: %d bytes", kind, size)
	return nil
}

// checkDirection rejects transfers whose operands contradict the kind.
func checkDirection(dst, src interface{}, kind MemcpyKind) error {
	_, dstDev := dst.(DevicePtr)
	_, srcDev := src.(DevicePtr)

	var ok bool
	switch kind {
	case MemcpyHostToHost:
		ok = !dstDev && !srcDev
	case MemcpyHostToDevice:
		ok = dstDev && !srcDev
	case MemcpyDeviceToHost:
		ok = !dstDev && srcDev
	case MemcpyDeviceToDevice:
		ok = dstDev && srcDev
	case MemcpyDefault:
		ok = true
	default:
		return NewInvalidArgError("Memcpy", fmt.Sprintf("unknown memcpy kind: %d", int(kind)))
	}
	if !ok {
		return NewInvalidArgError("Memcpy", fmt.Sprintf(
			"%s transfer with dst %T and src %T", kind, dst, src))
	}
	return nil
}

// bytesOf returns a byte view of a Memcpy operand
func (ctx *Context) bytesOf(which string, v interface{}) ([]byte, error) {
	switch d := v.(type) {
	case DevicePtr:
		if !ctx.memory.owns(d) {
			return nil, NewInvalidArgError("Memcpy", which+" is not a live device allocation")
		}
		return d.Byte(), nil
	case []byte:
		return d, nil
	case []float32:
		return sliceBytes(unsafe.Pointer(unsafe.SliceData(d)), len(d)*4), nil
	case []float64:
		return sliceBytes(unsafe.Pointer(unsafe.SliceData(d)), len(d)*8), nil
	case []int32:
		return sliceBytes(unsafe.Pointer(unsafe.SliceData(d)), len(d)*4), nil
	default:
		return nil, NewInvalidArgError("Memcpy", fmt.Sprintf("unsupported %s type: %T", which, v))
	}
}

func sliceBytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// MemoryPool methods

// Allocate allocates memory from the pool
func (mp *MemoryPool) Allocate(size int) (DevicePtr, error) {
	if size <= 0 {
		return DevicePtr{}, ErrInvalidSize
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	// Round up to alignment
	alignedSize := (size + MemoryAlignment - 1) &^ (MemoryAlignment - 1)
	if uint64(mp.totalAlloc)+uint64(alignedSize) > mp.limit {
		return DevicePtr{}, NewMemoryError("Malloc", fmt.Sprintf(
			"requested %d bytes with %d of %d in use",
			alignedSize, mp.totalAlloc, mp.limit), ErrOutOfMemory)
	}

	buf := make([]byte, alignedSize)
	ptr := unsafe.Pointer(unsafe.SliceData(buf))

	// An address seen before belongs to a released allocation the GC has
	// since reclaimed, so the entry is simply replaced.
	if old, ok := mp.allocated[uintptr(ptr)]; ok && !old.used {
		mp.released--
	}
	mp.allocated[uintptr(ptr)] = &allocation{
		buf:  buf,
		size: alignedSize,
		used: true,
	}

	// Update tracking
	mp.liveCount++
	mp.totalAlloc += int64(alignedSize)
	if mp.totalAlloc > mp.peakAlloc {
		mp.peakAlloc = mp.totalAlloc
	}

	klog.V(2).Infof("malloc: %d bytes at %p (%d live)", alignedSize, ptr, mp.liveCount)

	return DevicePtr{
		base: ptr,
		ptr:  ptr,
		size: size,
	}, nil
}

// Free releases memory back to the host
func (mp *MemoryPool) Free(ptr DevicePtr) error {
	if ptr.base == nil {
		return nil
	}
	if ptr.offset != 0 {
		return NewInvalidArgError("Free", "pointer is offset into an allocation")
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc, ok := mp.allocated[uintptr(ptr.base)]
	if !ok {
		return NewMemoryError("Free", "pointer not found in allocation pool", nil)
	}

	if !alloc.used {
		return ErrDoubleFree
	}

	// Drop the buffer; the entry stays only to detect a double free.
	alloc.used = false
	alloc.buf = nil
	mp.liveCount--
	mp.totalAlloc -= int64(alloc.size)
	mp.released++
	if mp.released > FreeListThreshold {
		mp.pruneReleased()
	}

	klog.V(2).Infof("free: %d bytes at %p (%d live)", alloc.size, ptr.base, mp.liveCount)
	return nil
}

// pruneReleased forgets released entries once too many have accumulated
func (mp *MemoryPool) pruneReleased() {
	for key, alloc := range mp.allocated {
		if !alloc.used {
			delete(mp.allocated, key)
		}
	}
	mp.released = 0
}

// releaseAll frees everything still allocated
func (mp *MemoryPool) releaseAll() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.liveCount > 0 {
		klog.V(1).Infof("releasing %d leaked allocations (%d bytes)", mp.liveCount, mp.totalAlloc)
	}
	clear(mp.allocated)
	mp.released = 0
	mp.liveCount = 0
	mp.totalAlloc = 0
}

func (mp *MemoryPool) owns(d DevicePtr) bool {
	if d.base == nil {
		return false
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	alloc, ok := mp.allocated[uintptr(d.base)]
	return ok && alloc.used
}

// GetStats returns memory pool statistics
func (mp *MemoryPool) GetStats() (allocated, peak int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.totalAlloc, mp.peakAlloc
}

// Stats returns a snapshot of the pool's accounting
func (mp *MemoryPool) Stats() MemoryStats {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return MemoryStats{
		Live:        mp.totalAlloc,
		Peak:        mp.peakAlloc,
		Allocations: mp.liveCount,
		Limit:       mp.limit,
	}
}

// DevicePtr methods for convenience

// Float32 returns a float32 slice view of the device memory.
// The slice can be used directly for reading and writing data.
//
// Example:
//
//	d_data, _ := guda.Malloc(1024 * 4) // Allocate for 1024 float32s
//	data := d_data.Float32()
//	data[0] = 3.14 // Direct access
func (d DevicePtr) Float32() []float32 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*float32)(d.ptr), d.size/4)
}

// Float64 returns a float64 slice view of the device memory.
func (d DevicePtr) Float64() []float64 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*float64)(d.ptr), d.size/8)
}

// Int32 returns an int32 slice view of the device memory.
func (d DevicePtr) Int32() []int32 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*int32)(d.ptr), d.size/4)
}

// Byte returns a byte slice view of the device memory.
// The slice covers the entire allocated memory region.
func (d DevicePtr) Byte() []byte {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(d.ptr), d.size)
}

// Offset returns a new DevicePtr offset by the given number of bytes.
// Useful for accessing sub-regions of allocated memory.
// The returned DevicePtr shares the same underlying memory.
//
// Example:
//
//	d_array, _ := guda.Malloc(1024 * 4) // 1024 float32s
//	d_second_half := d_array.Offset(512 * 4) // Start at element 512
//	data := d_second_half.Float32() // Access second half
func (d DevicePtr) Offset(bytes int) DevicePtr {
	if bytes < 0 || bytes > d.size {
		panic(fmt.Sprintf("guda: offset %d outside allocation of %d bytes", bytes, d.size))
	}
	return DevicePtr{
		base:   d.base,
		ptr:    unsafe.Add(d.ptr, bytes),
		size:   d.size - bytes,
		offset: d.offset + bytes,
	}
}

// Size returns the size in bytes of the memory region
func (d DevicePtr) Size() int {
	return d.size
}

// IsNil reports whether the pointer refers to no memory
func (d DevicePtr) IsNil() bool {
	return d.ptr == nil
}
