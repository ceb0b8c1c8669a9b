package matmul

import (
	"errors"
	"fmt"
	"io"
	"time"

	"k8s.io/klog/v2"

	guda "github.com/LynnColeArt/gudamm"
)

// Geometry is the launch shape of one multiplication.
type Geometry struct {
	Grid      guda.Dim3 // (N/TileSize, L/TileSize, 1) blocks
	Block     guda.Dim3 // (TileSize, TileSize, 1) threads
	SharedMem int       // Bytes of shared memory per block
	Chunks    int       // Reduction steps per block, M/TileSize
}

// LaunchGeometry derives the launch shape for an N×M by M×L product.
func LaunchGeometry(n, m, l int) Geometry {
	return Geometry{
		Grid:      guda.Dim3{X: n / TileSize, Y: l / TileSize, Z: 1},
		Block:     guda.Dim3{X: TileSize, Y: TileSize, Z: 1},
		SharedMem: SharedMemBytes,
		Chunks:    m / TileSize,
	}
}

// Config turns the geometry into a launch configuration on stream.
func (g Geometry) Config(stream *guda.Stream) guda.LaunchConfig {
	return guda.LaunchConfig{
		Grid:      g.Grid,
		Block:     g.Block,
		SharedMem: g.SharedMem,
		Stream:    stream,
	}
}

// Options control a multiplication call.
type Options struct {
	// Stream runs the kernel; nil uses the context's default stream.
	Stream *guda.Stream

	// Report, when set, receives the timing and throughput report.
	Report io.Writer

	// Counters samples hardware performance counters around the kernel.
	// Where the platform refuses them the multiply runs without.
	Counters bool
}

// Timing holds the elapsed times of one multiplication.
type Timing struct {
	N, M, L int

	// Kernel is the exclusive time: the kernel alone.
	Kernel time.Duration

	// Total is the inclusive time: allocation, both transfers and the kernel.
	Total time.Duration

	// Counters is set when Options.Counters was requested and available.
	Counters *guda.PerfCounters
}

// FLOPs counts one multiply and one add per inner-product term.
func (t Timing) FLOPs() float64 {
	return 2 * float64(t.N) * float64(t.M) * float64(t.L)
}

// KernelFLOPS is the kernel-only throughput in FLOP/s.
func (t Timing) KernelFLOPS() float64 {
	return perSecond(t.FLOPs(), t.Kernel)
}

// TotalFLOPS is the end-to-end throughput in FLOP/s.
func (t Timing) TotalFLOPS() float64 {
	return perSecond(t.FLOPs(), t.Total)
}

func perSecond(v float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return v / d.Seconds()
}

// WriteReport prints the timing report.
func (t Timing) WriteReport(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"Matrix multiply: C(%dx%d) = A(%dx%d) * B(%dx%d)\n"+
			"Kernel time (exclusive):  %10.3f ms  %8.2f GFLOPS\n"+
			"Total time (inclusive):   %10.3f ms  %8.2f GFLOPS\n",
		t.N, t.L, t.N, t.M, t.M, t.L,
		milliseconds(t.Kernel), t.KernelFLOPS()/1e9,
		milliseconds(t.Total), t.TotalFLOPS()/1e9)
	if err != nil || t.Counters == nil {
		return err
	}
	_, err = io.WriteString(w, t.Counters.String())
	return err
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Multiply returns a new matrix holding a·b.
func Multiply(ctx *guda.Context, a, b *Matrix, opts Options) (*Matrix, Timing, error) {
	if err := ValidateShapes(a, b, nil); err != nil {
		return nil, Timing{}, err
	}
	c := NewMatrix(a.Rows, b.Cols)
	t, err := MultiplyInto(ctx, a, b, c, opts)
	if err != nil {
		return nil, t, err
	}
	return c, t, nil
}

// MultiplyInto computes c = a·b on the device with the tiled kernel.
//
// Device buffers for the three matrices are allocated for this call only
// and released before it returns, whether or not it succeeds. Any failure
// (allocation, transfer, or a kernel fault surfaced at synchronization)
// aborts the call; c's contents are then unspecified.
func MultiplyInto(ctx *guda.Context, a, b, c *Matrix, opts Options) (t Timing, err error) {
	if err := ValidateShapes(a, b, c); err != nil {
		return Timing{}, err
	}
	n, m, l := a.Rows, a.Cols, b.Cols
	t = Timing{N: n, M: m, L: l}

	start := time.Now()

	dA, err := ctx.Malloc(a.Bytes())
	if err != nil {
		return t, fmt.Errorf("allocate A: %w", err)
	}
	defer release(ctx, dA, &err)

	dB, err := ctx.Malloc(b.Bytes())
	if err != nil {
		return t, fmt.Errorf("allocate B: %w", err)
	}
	defer release(ctx, dB, &err)

	dC, err := ctx.Malloc(c.Bytes())
	if err != nil {
		return t, fmt.Errorf("allocate C: %w", err)
	}
	defer release(ctx, dC, &err)

	if err := ctx.Memcpy(dA, a.Data, a.Bytes(), guda.MemcpyHostToDevice); err != nil {
		return t, fmt.Errorf("copy A to device: %w", err)
	}
	if err := ctx.Memcpy(dB, b.Data, b.Bytes(), guda.MemcpyHostToDevice); err != nil {
		return t, fmt.Errorf("copy B to device: %w", err)
	}

	geo := LaunchGeometry(n, m, l)
	stream := opts.Stream
	if stream == nil {
		stream = ctx.DefaultStream()
	}
	klog.V(1).Infof("multiply %dx%dx%d: grid %v block %v, %d chunks",
		n, m, l, geo.Grid, geo.Block, geo.Chunks)

	var monitor *guda.PerfMonitor
	if opts.Counters {
		monitor = guda.NewPerfMonitor()
		if err := monitor.Start(); err != nil {
			klog.Warningf("hardware counters unavailable: %v", err)
			monitor = nil
		} else {
			defer monitor.Stop()
		}
	}

	kernelStart, kernelStop := ctx.CreateEvent(), ctx.CreateEvent()
	if err := kernelStart.Record(stream); err != nil {
		return t, err
	}
	if err := ctx.LaunchKernel(TileKernel, geo.Config(stream), dA, dB, dC, m, l); err != nil {
		return t, fmt.Errorf("launch: %w", err)
	}
	if err := kernelStop.Record(stream); err != nil {
		return t, err
	}

	// The launch is asynchronous; device faults only show up here
	if err := stream.Synchronize(); err != nil {
		return t, fmt.Errorf("kernel: %w", err)
	}
	if t.Kernel, err = guda.ElapsedTime(kernelStart, kernelStop); err != nil {
		return t, err
	}
	if monitor != nil {
		t.Counters = monitor.Stop()
		t.Counters.Duration = t.Kernel
		t.Counters.CalculateMetrics(uint64(t.FLOPs()), uint64(a.Bytes()+b.Bytes()+c.Bytes()))
	}

	if err := ctx.Memcpy(c.Data, dC, c.Bytes(), guda.MemcpyDeviceToHost); err != nil {
		return t, fmt.Errorf("copy C to host: %w", err)
	}
	t.Total = time.Since(start)

	if opts.Report != nil {
		if err := t.WriteReport(opts.Report); err != nil {
			return t, err
		}
	}
	return t, nil
}

// release frees a device buffer and folds any failure into *err.
func release(ctx *guda.Context, p guda.DevicePtr, err *error) {
	if ferr := ctx.Free(p); ferr != nil {
		*err = errors.Join(*err, fmt.Errorf("free device buffer: %w", ferr))
	}
}
