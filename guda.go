// Package guda provides a CUDA-compatible API for CPU execution.
// It runs CUDA-style kernels on CPU-only infrastructure: a grid of thread
// blocks, where every block is a group of goroutines sharing one block-local
// shared memory region and one barrier.
//
// Example usage:
//
//	ctx := guda.NewContext()
//	defer ctx.Destroy()
//
//	// Allocate device memory
//	d_a, _ := ctx.Malloc(n * 4) // n float32s
//	d_b, _ := ctx.Malloc(n * 4)
//
//	// Copy data to device
//	ctx.Memcpy(d_a, h_a, n*4, guda.MemcpyHostToDevice)
//	ctx.Memcpy(d_b, h_b, n*4, guda.MemcpyHostToDevice)
//
//	// Launch kernel
//	cfg := guda.LaunchConfig{
//		Grid:      guda.Dim3{X: (n + 255) / 256},
//		Block:     guda.Dim3{X: 256},
//		SharedMem: 256 * 4,
//	}
//	ctx.LaunchKernel(myKernel, cfg, args...)
//	if err := ctx.Synchronize(); err != nil {
//		// a kernel faulted
//	}
package guda

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Device represents a compute device. In GUDA, this is the CPU with its
// cores and available memory. Each device has a unique ID and capabilities.
type Device struct {
	ID                 int      // Unique device identifier
	Name               string   // Human-readable device name
	TotalMem           uint64   // Total available memory in bytes
	NumCores           int      // Number of CPU cores
	MaxThreads         int      // Maximum concurrent threads
	MaxThreadsPerBlock int      // Upper bound on Dim3.Size() of a block
	SharedMemPerBlock  int      // Shared memory bytes a block may request
	WarpSize           int      // Lockstep group width (informational)
	Features           []string // Instruction set extensions
}

// Context represents an execution context for GUDA operations.
// It manages device resources, memory allocation, and stream execution.
// A Context must be created before any GUDA operations and should be
// destroyed when no longer needed.
type Context struct {
	mu            sync.Mutex
	device        *Device
	streams       map[int]*Stream
	streamID      int32
	memory        *MemoryPool
	defaultStream *Stream
	workers       int
	destroyed     atomic.Bool
}

// Stream represents an ordered sequence of operations that execute
// asynchronously. Operations within a stream execute in order, but
// operations in different streams may execute concurrently.
//
// The first fault raised by an operation is kept until the stream is
// synchronized.
type Stream struct {
	id        int
	tasks     chan func() error
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	err     error
}

// Dim3 represents 3D dimensions for grid and block configurations.
// This matches CUDA's dim3 structure for kernel launch parameters.
type Dim3 struct {
	X, Y, Z int
}

// ThreadID identifies a thread's position within the execution hierarchy.
// It provides the same indexing semantics as CUDA's built-in variables:
// blockIdx, threadIdx, blockDim, and gridDim.
type ThreadID struct {
	BlockIdx  Dim3 // Block index within the grid
	ThreadIdx Dim3 // Thread index within the block
	BlockDim  Dim3 // Dimensions of the block
	GridDim   Dim3 // Dimensions of the grid

	block *blockState
}

// Kernel represents a compute kernel that can be executed in parallel.
// Implementations should be thread-safe as Execute will be called
// concurrently from multiple threads.
type Kernel interface {
	Execute(tid ThreadID, args ...interface{})
}

// KernelFunc is a function that can be launched as a kernel.
// It receives thread identification and variadic arguments.
type KernelFunc func(tid ThreadID, args ...interface{})

// LaunchConfig carries the <<<grid, block, sharedMem, stream>>> parameters
// of a kernel launch. A nil Stream selects the context's default stream.
type LaunchConfig struct {
	Grid      Dim3
	Block     Dim3
	SharedMem int // Bytes of shared memory per block
	Stream    *Stream
}

// DevicePtr represents a pointer to device memory. It provides type-safe
// access to device memory and supports pointer arithmetic through the
// Offset method. Use the type conversion methods (Float32, Float64, etc.)
// to access the underlying data with proper type safety.
type DevicePtr struct {
	base   unsafe.Pointer
	ptr    unsafe.Pointer
	size   int
	offset int
}

// Global runtime state
var (
	defaultDevice  *Device
	defaultContext *Context
	initOnce       sync.Once
)

// Initialize GUDA runtime
func init() {
	initOnce.Do(func() {
		defaultDevice = &Device{
			ID:                 0,
			Name:               deviceName(),
			TotalMem:           getSystemMemory(),
			NumCores:           runtime.NumCPU(),
			MaxThreads:         runtime.NumCPU() * 2, // Hyperthreading
			MaxThreadsPerBlock: MaxThreadsPerBlock,
			SharedMemPerBlock:  SharedMemPerBlock,
			WarpSize:           WarpSize,
			Features:           cpuFeatureList(),
		}

		defaultContext = newContext(defaultDevice)
	})
}

// NewContext creates a context on the CPU device with its own memory
// accounting and default stream.
func NewContext() *Context {
	dev := *defaultDevice
	return newContext(&dev)
}

func newContext(dev *Device) *Context {
	ctx := &Context{
		device:  dev,
		streams: make(map[int]*Stream),
		memory:  NewMemoryPool(dev.TotalMem),
		workers: dev.NumCores,
	}

	// Create default stream
	ctx.defaultStream = ctx.CreateStream()
	return ctx
}

// Malloc allocates device memory of the specified size in bytes.
// In GUDA, this allocates CPU memory with proper alignment for SIMD operations.
// The returned DevicePtr can be used with all GUDA operations.
//
// Example:
//
//	d_data, err := guda.Malloc(1024 * 4) // Allocate 1024 float32s
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer guda.Free(d_data)
func Malloc(size int) (DevicePtr, error) {
	return defaultContext.Malloc(size)
}

// Free releases device memory allocated by Malloc.
// It is safe to call Free with a zero-value DevicePtr.
func Free(ptr DevicePtr) error {
	return defaultContext.Free(ptr)
}

// Memcpy copies memory between host and device.
// Supports various Go slice types ([]float32, []float64, []int32, []byte).
//
// Parameters:
//   - dst: Destination (DevicePtr or Go slice)
//   - src: Source (DevicePtr or Go slice)
//   - size: Number of bytes to copy
//   - kind: Transfer direction (MemcpyHostToDevice, MemcpyDeviceToHost, etc.)
func Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	return defaultContext.Memcpy(dst, src, size, kind)
}

// Launch executes a kernel on the default stream.
// The kernel is executed across a grid of thread blocks.
//
// Example:
//
//	kernel := MyKernel{}
//	err := guda.Launch(kernel, guda.Dim3{X: 256, Y: 1, Z: 1}, guda.Dim3{X: 64, Y: 1, Z: 1})
func Launch(kernel Kernel, grid, block Dim3, args ...interface{}) error {
	return defaultContext.Launch(kernel, grid, block, args...)
}

// LaunchFunc executes a kernel function
func LaunchFunc(fn KernelFunc, grid, block Dim3, args ...interface{}) error {
	return defaultContext.LaunchFunc(fn, grid, block, args...)
}

// Synchronize waits for all operations on all streams to complete.
// Faults raised by kernels since the last synchronization are returned here.
//
// Example:
//
//	guda.Launch(kernel, grid, block)
//	err := guda.Synchronize() // Wait for kernel to complete
func Synchronize() error {
	return defaultContext.Synchronize()
}

// GetDevice returns the current device information.
// In GUDA, this always returns the CPU device.
func GetDevice() *Device {
	return defaultDevice
}

// SetDevice sets the active device (no-op for CPU)
func SetDevice(id int) error {
	if id != 0 {
		return ErrInvalidDevice
	}
	return nil
}

// GetDeviceCount returns the number of available devices.
// GUDA always returns 1 as it only supports CPU execution.
func GetDeviceCount() int {
	return 1 // Only CPU
}

// GetDeviceProperties returns device properties
func GetDeviceProperties(id int) (*Device, error) {
	if id != 0 {
		return nil, NewInvalidArgError("GetDeviceProperties", fmt.Sprintf("invalid device ID: %d", id))
	}
	return defaultDevice, nil
}

// Context methods

// Device returns the device this context runs on
func (ctx *Context) Device() *Device {
	return ctx.device
}

// SetWorkers bounds how many thread blocks execute concurrently.
// Values <= 0 restore the default of one worker per core.
func (ctx *Context) SetWorkers(n int) {
	if n <= 0 {
		n = ctx.device.NumCores
	}
	ctx.mu.Lock()
	ctx.workers = n
	ctx.mu.Unlock()
}

// DefaultStream returns the stream used when no stream is specified
func (ctx *Context) DefaultStream() *Stream {
	return ctx.defaultStream
}

// CreateStream creates a new execution stream
func (ctx *Context) CreateStream() *Stream {
	id := int(atomic.AddInt32(&ctx.streamID, 1))
	stream := &Stream{
		id:    id,
		tasks: make(chan func() error, StreamQueueDepth),
		done:  make(chan struct{}),
	}
	stream.idle = sync.NewCond(&stream.mu)

	// Start worker goroutine for stream
	go stream.worker()

	ctx.mu.Lock()
	ctx.streams[id] = stream
	ctx.mu.Unlock()
	return stream
}

// Launch executes a kernel on the default stream
func (ctx *Context) Launch(kernel Kernel, grid, block Dim3, args ...interface{}) error {
	return ctx.LaunchStream(kernel, grid, block, ctx.defaultStream, args...)
}

// LaunchFunc executes a kernel function on the default stream
func (ctx *Context) LaunchFunc(fn KernelFunc, grid, block Dim3, args ...interface{}) error {
	return ctx.LaunchFuncStream(fn, grid, block, ctx.defaultStream, args...)
}

// LaunchStream executes a kernel on a specific stream
func (ctx *Context) LaunchStream(kernel Kernel, grid, block Dim3, stream *Stream, args ...interface{}) error {
	cfg := LaunchConfig{Grid: grid, Block: block, Stream: stream}
	return ctx.launchInternal(kernel.Execute, cfg, args...)
}

// LaunchFuncStream executes a kernel function on a specific stream
func (ctx *Context) LaunchFuncStream(fn KernelFunc, grid, block Dim3, stream *Stream, args ...interface{}) error {
	cfg := LaunchConfig{Grid: grid, Block: block, Stream: stream}
	return ctx.launchInternal(fn, cfg, args...)
}

// LaunchKernel executes a kernel function with a full launch configuration,
// including the shared memory each block receives.
func (ctx *Context) LaunchKernel(fn KernelFunc, cfg LaunchConfig, args ...interface{}) error {
	return ctx.launchInternal(fn, cfg, args...)
}

// Synchronize waits for all streams to complete and returns any fault
// recorded on them.
func (ctx *Context) Synchronize() error {
	ctx.mu.Lock()
	streams := make([]*Stream, 0, len(ctx.streams))
	for _, stream := range ctx.streams {
		streams = append(streams, stream)
	}
	ctx.mu.Unlock()

	var errs []error
	for _, stream := range streams {
		if err := stream.Synchronize(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Destroy waits for outstanding work, stops every stream and releases all
// device memory still owned by the context.
func (ctx *Context) Destroy() error {
	if ctx.destroyed.Swap(true) {
		return nil
	}
	err := ctx.Synchronize()

	ctx.mu.Lock()
	for id, stream := range ctx.streams {
		stream.close()
		delete(ctx.streams, id)
	}
	ctx.mu.Unlock()

	ctx.memory.releaseAll()
	return err
}

// Stream methods

// worker processes tasks for a stream
func (s *Stream) worker() {
	for task := range s.tasks {
		if err := task(); err != nil {
			s.setErr(err)
		}

		s.mu.Lock()
		s.pending--
		if s.pending == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
	close(s.done)
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Synchronize waits for all tasks in the stream to complete. It returns the
// first fault raised since the previous Synchronize and clears it.
// Any number of goroutines may wait while others keep submitting.
func (s *Stream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
	err := s.err
	s.err = nil
	return err
}

// Submit adds a task to the stream. A non-nil error returned by the task is
// recorded as the stream's fault.
func (s *Stream) Submit(task func() error) {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
	s.tasks <- task
}

func (s *Stream) close() {
	s.closeOnce.Do(func() {
		close(s.tasks)
		<-s.done
	})
}

// ID returns the stream identifier
func (s *Stream) ID() int {
	return s.id
}

// Helper functions

// SyncThreads blocks until every thread of the block has reached it.
// It is the equivalent of CUDA's __syncthreads().
func (tid ThreadID) SyncThreads() {
	if tid.block == nil {
		return
	}
	tid.block.barrier.Wait()
}

// Shared returns the block's shared memory. Every thread of a block sees
// the same region; other blocks never do.
func (tid ThreadID) Shared() DevicePtr {
	if tid.block == nil {
		return DevicePtr{}
	}
	return tid.block.shared
}

// Global returns the global thread index
func (tid ThreadID) Global() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// Size returns the total number of elements
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}

// normalize treats unset Y and Z as 1, like CUDA's dim3 constructor.
func (d Dim3) normalize() Dim3 {
	if d.Y == 0 {
		d.Y = 1
	}
	if d.Z == 0 {
		d.Z = 1
	}
	return d
}

// String formats the dimensions as (x, y, z)
func (d Dim3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", d.X, d.Y, d.Z)
}

// Implement KernelFunc as Kernel
func (fn KernelFunc) Execute(tid ThreadID, args ...interface{}) {
	fn(tid, args...)
}
