package guda

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// blockState is the storage shared by the threads of one executing block.
type blockState struct {
	barrier *barrier
	shared  DevicePtr
	buf     []byte
}

func newBlockState(threads, sharedMem int) *blockState {
	bs := &blockState{barrier: newBarrier(threads)}
	if sharedMem > 0 {
		bs.buf = make([]byte, sharedMem)
		p := unsafe.Pointer(unsafe.SliceData(bs.buf))
		bs.shared = DevicePtr{base: p, ptr: p, size: sharedMem}
	}
	return bs
}

// validateLaunch checks a normalized launch configuration against the
// device limits, like cudaErrorInvalidConfiguration.
func (ctx *Context) validateLaunch(grid, block Dim3, sharedMem int) error {
	if grid.X < 0 || grid.Y < 0 || grid.Z < 0 {
		return NewInvalidArgError("Launch", fmt.Sprintf("invalid grid dimensions %v", grid))
	}
	threads := block.Size()
	if block.X <= 0 || block.Y <= 0 || block.Z <= 0 || threads > ctx.device.MaxThreadsPerBlock {
		return NewInvalidArgError("Launch", fmt.Sprintf(
			"block %v must have between 1 and %d threads", block, ctx.device.MaxThreadsPerBlock))
	}
	if sharedMem < 0 || sharedMem > ctx.device.SharedMemPerBlock {
		return NewInvalidArgError("Launch", fmt.Sprintf(
			"shared memory request of %d bytes exceeds %d per block", sharedMem, ctx.device.SharedMemPerBlock))
	}
	return nil
}

// launchInternal implements the core kernel execution logic. The launch is
// queued on the stream and runs asynchronously; faults are reported when
// the stream is synchronized.
func (ctx *Context) launchInternal(
	kernelFunc func(ThreadID, ...interface{}),
	cfg LaunchConfig,
	args ...interface{},
) error {
	if ctx.destroyed.Load() {
		return ErrContextDestroyed
	}

	grid, block := cfg.Grid.normalize(), cfg.Block.normalize()
	if err := ctx.validateLaunch(grid, block, cfg.SharedMem); err != nil {
		return err
	}

	stream := cfg.Stream
	if stream == nil {
		stream = ctx.defaultStream
	}

	gridSize := grid.Size()

	// Handle edge case where grid size is zero
	if gridSize == 0 {
		// Submit an empty task to maintain stream ordering
		stream.Submit(func() error { return nil })
		return nil
	}

	ctx.mu.Lock()
	workers := min(ctx.workers, gridSize)
	ctx.mu.Unlock()

	klog.V(1).Infof("launch: grid %v block %v shared %dB on stream %d (%d workers)",
		grid, block, cfg.SharedMem, stream.id, workers)

	stream.Submit(func() error {
		g, gctx := errgroup.WithContext(context.Background())
		g.SetLimit(workers)

		for blockID := 0; blockID < gridSize; blockID++ {
			// A faulted block aborts the rest of the grid
			if gctx.Err() != nil {
				break
			}
			blockIdx := linearTo3D(blockID, grid)
			g.Go(func() error {
				return runBlock(kernelFunc, blockIdx, grid, block, cfg.SharedMem, args)
			})
		}

		return g.Wait()
	})

	return nil
}

// runBlock executes every thread of one block concurrently. Threads share
// the block's memory and barrier; the first panicking thread becomes the
// block's fault and breaks the barrier so no sibling waits forever.
func runBlock(
	kernelFunc func(ThreadID, ...interface{}),
	blockIdx, grid, block Dim3,
	sharedMem int,
	args []interface{},
) error {
	threads := block.Size()
	bs := newBlockState(threads, sharedMem)

	faults := make(chan error, 1)
	done := make(chan struct{}, threads)

	for threadID := 0; threadID < threads; threadID++ {
		tid := ThreadID{
			BlockIdx:  blockIdx,
			ThreadIdx: linearTo3D(threadID, block),
			BlockDim:  block,
			GridDim:   grid,
			block:     bs,
		}

		go func() {
			defer func() { done <- struct{}{} }()
			defer func() {
				r := recover()
				if r == nil {
					bs.barrier.leave()
					return
				}
				if r == errBarrierBroken {
					return
				}
				err := NewExecutionError("Kernel", fmt.Sprintf(
					"thread %v of block %v faulted", tid.ThreadIdx, tid.BlockIdx),
					fmt.Errorf("%v", r))
				select {
				case faults <- err:
					klog.V(2).Infof("%v", err)
				default:
				}
				bs.barrier.breakAll()
			}()

			kernelFunc(tid, args...)
		}()
	}

	for range threads {
		<-done
	}

	select {
	case err := <-faults:
		return err
	default:
		return nil
	}
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int, dim Dim3) Dim3 {
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return Dim3{X: x, Y: y, Z: z}
}

// Helper functions for common patterns

// ForEach applies a function to each element in parallel on the default
// context and waits for it to finish.
func ForEach(data DevicePtr, size int, fn func(idx int, val *float32)) error {
	grid := Dim3{X: (size + DefaultBlockSize - 1) / DefaultBlockSize, Y: 1, Z: 1}
	block := Dim3{X: DefaultBlockSize, Y: 1, Z: 1}

	kernel := KernelFunc(func(tid ThreadID, args ...interface{}) {
		idx := tid.Global()
		if idx < size {
			slice := data.Float32()
			fn(idx, &slice[idx])
		}
	})

	if err := Launch(kernel, grid, block); err != nil {
		return err
	}
	return defaultContext.defaultStream.Synchronize()
}
