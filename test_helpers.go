package guda

import (
	"testing"
)

// MallocOrFail allocates device memory on ctx and frees it when the test
// ends.
func MallocOrFail(t testing.TB, ctx *Context, size int) DevicePtr {
	t.Helper()
	ptr, err := ctx.Malloc(size)
	if err != nil {
		t.Fatalf("Failed to allocate %d bytes: %v", size, err)
	}
	t.Cleanup(func() { ctx.Free(ptr) })
	return ptr
}

// MemcpyOrFail copies data and fails the test if unsuccessful
func MemcpyOrFail(t testing.TB, ctx *Context, dst, src interface{}, size int, direction MemcpyKind) {
	t.Helper()
	if err := ctx.Memcpy(dst, src, size, direction); err != nil {
		t.Fatalf("Memcpy %v failed: %v", direction, err)
	}
}

// LaunchOrFail launches a kernel and fails the test if the launch is
// rejected. Faults inside the kernel only show up at synchronization.
func LaunchOrFail(t testing.TB, ctx *Context, kernel KernelFunc, cfg LaunchConfig, args ...interface{}) {
	t.Helper()
	if err := ctx.LaunchKernel(kernel, cfg, args...); err != nil {
		t.Fatalf("Kernel launch failed: %v", err)
	}
}

// SynchronizeOrFail waits for every stream of ctx and fails the test on a
// pending fault.
func SynchronizeOrFail(t testing.TB, ctx *Context) {
	t.Helper()
	if err := ctx.Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
}
