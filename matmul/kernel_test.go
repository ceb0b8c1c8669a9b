package matmul

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	guda "github.com/LynnColeArt/gudamm"
)

func deviceMatrix(t *testing.T, ctx *guda.Context, m *Matrix) guda.DevicePtr {
	t.Helper()
	d := guda.MallocOrFail(t, ctx, m.Bytes())
	guda.MemcpyOrFail(t, ctx, d, m.Data, m.Bytes(), guda.MemcpyHostToDevice)
	return d
}

// Launching the kernel directly: every thread writes its own element.
func TestTileKernelDirect(t *testing.T) {
	ctx := guda.NewContext()
	defer ctx.Destroy()

	const n, m, l = 32, 48, 16
	a, b, c := NewMatrix(n, m), NewMatrix(m, l), NewMatrix(n, l)
	for i := range a.Data {
		a.Data[i] = float32(i%7) - 3
	}
	for i := range b.Data {
		b.Data[i] = float32(i%5) - 2
	}
	for i := range c.Data {
		c.Data[i] = 12345
	}
	dA, dB, dC := deviceMatrix(t, ctx, a), deviceMatrix(t, ctx, b), deviceMatrix(t, ctx, c)

	geo := LaunchGeometry(n, m, l)
	guda.LaunchOrFail(t, ctx, TileKernel, geo.Config(nil), dA, dB, dC, m, l)
	guda.SynchronizeOrFail(t, ctx)
	guda.MemcpyOrFail(t, ctx, c.Data, dC, c.Bytes(), guda.MemcpyDeviceToHost)

	want := NewMatrix(n, l)
	require.NoError(t, MultiplyHost(a, b, want))
	assert.Equal(t, want.Data, c.Data)
}

// The kernel does no bounds checking: a reduction length larger than the
// buffers faults, and the fault is only visible at synchronization.
func TestTileKernelFault(t *testing.T) {
	ctx := guda.NewContext()
	defer ctx.Destroy()

	a, b, c := NewMatrix(16, 16), NewMatrix(16, 16), NewMatrix(16, 16)
	dA, dB, dC := deviceMatrix(t, ctx, a), deviceMatrix(t, ctx, b), deviceMatrix(t, ctx, c)

	geo := LaunchGeometry(16, 64, 16)
	guda.LaunchOrFail(t, ctx, TileKernel, geo.Config(nil), dA, dB, dC, 64, 16)

	err := ctx.Synchronize()
	require.Error(t, err)
	assert.True(t, guda.IsExecutionError(err), "got %v", err)
}

func TestMultiplyHostValidates(t *testing.T) {
	err := MultiplyHost(NewMatrix(16, 16), NewMatrix(32, 16), NewMatrix(16, 16))
	assert.True(t, guda.IsInvalidArgError(err))
}
