package guda

import (
	"math"
	"math/rand"
	"testing"
)

// Test basic memory allocation and deallocation
func TestMemoryAllocation(t *testing.T) {
	sizes := []int{100, 1000, 10000, 1000000}

	for _, size := range sizes {
		ptr, err := Malloc(size * 4)
		if err != nil {
			t.Fatalf("Failed to allocate %d bytes: %v", size*4, err)
		}

		// Verify we can access the memory
		slice := ptr.Float32()
		if len(slice) != size {
			t.Errorf("Expected slice length %d, got %d", size, len(slice))
		}

		// Write and read test
		for i := 0; i < min(100, size); i++ {
			slice[i] = float32(i)
		}

		for i := 0; i < min(100, size); i++ {
			if slice[i] != float32(i) {
				t.Errorf("Memory corruption at index %d", i)
			}
		}

		err = Free(ptr)
		if err != nil {
			t.Fatalf("Failed to free memory: %v", err)
		}
	}
}

// Test memory copy operations
func TestMemcpy(t *testing.T) {
	const N = 1000

	// Create host data
	h_src := make([]float32, N)
	h_dst := make([]float32, N)
	for i := 0; i < N; i++ {
		h_src[i] = rand.Float32()
	}

	// Allocate device memory
	d_src, _ := Malloc(N * 4)
	d_dst, _ := Malloc(N * 4)
	defer Free(d_src)
	defer Free(d_dst)

	// Test H2D copy
	err := Memcpy(d_src, h_src, N*4, MemcpyHostToDevice)
	if err != nil {
		t.Fatalf("H2D copy failed: %v", err)
	}

	// Test D2D copy
	err = Memcpy(d_dst, d_src, N*4, MemcpyDeviceToDevice)
	if err != nil {
		t.Fatalf("D2D copy failed: %v", err)
	}

	// Test D2H copy
	err = Memcpy(h_dst, d_dst, N*4, MemcpyDeviceToHost)
	if err != nil {
		t.Fatalf("D2H copy failed: %v", err)
	}

	// Verify data
	for i := 0; i < N; i++ {
		if math.Abs(float64(h_src[i]-h_dst[i])) > 1e-6 {
			t.Errorf("Data mismatch at index %d: %f vs %f", i, h_src[i], h_dst[i])
		}
	}
}

// Test basic kernel launch
func TestKernelLaunch(t *testing.T) {
	const N = 10000

	// Allocate memory
	d_data, _ := Malloc(N * 4)
	defer Free(d_data)

	slice := d_data.Float32()

	// Launch kernel to set values
	kernel := KernelFunc(func(tid ThreadID, args ...interface{}) {
		idx := tid.Global()
		if idx < N {
			slice[idx] = float32(idx)
		}
	})

	err := Launch(kernel, Dim3{X: (N + 255) / 256, Y: 1, Z: 1}, Dim3{X: 256, Y: 1, Z: 1})
	if err != nil {
		t.Fatalf("Kernel launch failed: %v", err)
	}

	err = Synchronize()
	if err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}

	// Verify results
	for i := 0; i < N; i++ {
		if slice[i] != float32(i) {
			t.Errorf("Incorrect value at index %d: expected %f, got %f", i, float32(i), slice[i])
		}
	}
}

// Test element-wise helper
func TestForEach(t *testing.T) {
	const N = 1000

	d_data, err := Malloc(N * 4)
	if err != nil {
		t.Fatal(err)
	}
	defer Free(d_data)

	if err := ForEach(d_data, N, func(idx int, val *float32) {
		*val = float32(idx) * 2
	}); err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}

	data := d_data.Float32()
	for i := 0; i < N; i++ {
		if data[i] != float32(i)*2 {
			t.Fatalf("index %d: got %f, want %f", i, data[i], float32(i)*2)
		}
	}
}

// Test error conditions
func TestErrorHandling(t *testing.T) {
	// Test double free
	ptr, _ := Malloc(100)
	err := Free(ptr)
	if err != nil {
		t.Fatalf("First free failed: %v", err)
	}

	err = Free(ptr)
	if err == nil {
		t.Error("Double free should have failed")
	}

	// Test invalid device
	err = SetDevice(1)
	if err == nil {
		t.Error("SetDevice(1) should have failed")
	}

	if _, err := GetDeviceProperties(3); !IsInvalidArgError(err) {
		t.Errorf("GetDeviceProperties(3) = %v, want invalid argument", err)
	}

	// Test device count
	count := GetDeviceCount()
	if count != 1 {
		t.Errorf("Expected 1 device, got %d", count)
	}
}

// Test memory pool statistics
func TestMemoryPoolStats(t *testing.T) {
	// Get initial stats
	allocated1, _ := defaultContext.memory.GetStats()

	// Allocate some memory
	ptrs := make([]DevicePtr, 10)
	for i := range ptrs {
		ptrs[i], _ = Malloc(1024 * 1024) // 1MB each
	}

	// Check stats increased
	allocated2, peak2 := defaultContext.memory.GetStats()
	if allocated2 <= allocated1 {
		t.Error("Allocated memory should have increased")
	}
	if peak2 < allocated2 {
		t.Error("Peak should be at least current allocation")
	}

	// Free half
	for i := 0; i < 5; i++ {
		Free(ptrs[i])
	}

	// Check allocated decreased but peak unchanged
	allocated3, peak3 := defaultContext.memory.GetStats()
	if allocated3 >= allocated2 {
		t.Error("Allocated memory should have decreased")
	}
	if peak3 != peak2 {
		t.Error("Peak should not have changed")
	}

	// Clean up
	for i := 5; i < 10; i++ {
		Free(ptrs[i])
	}

	allocated4, _ := defaultContext.memory.GetStats()
	if allocated4 != allocated1 {
		t.Errorf("Allocated memory should be back to %d, got %d", allocated1, allocated4)
	}
}

// Test device properties
func TestDeviceProperties(t *testing.T) {
	dev := GetDevice()
	if dev.NumCores <= 0 {
		t.Errorf("NumCores = %d", dev.NumCores)
	}
	if dev.TotalMem == 0 {
		t.Error("TotalMem should be positive")
	}
	if dev.MaxThreadsPerBlock != MaxThreadsPerBlock {
		t.Errorf("MaxThreadsPerBlock = %d, want %d", dev.MaxThreadsPerBlock, MaxThreadsPerBlock)
	}
	if dev.SharedMemPerBlock != SharedMemPerBlock {
		t.Errorf("SharedMemPerBlock = %d, want %d", dev.SharedMemPerBlock, SharedMemPerBlock)
	}
	if dev.Name == "" {
		t.Error("device should have a name")
	}
	t.Logf("%s, %d MiB, %s", dev.Name, dev.TotalMem>>20, GetCPUInfo())
}

func TestDim3(t *testing.T) {
	if got := (Dim3{X: 4}).normalize(); got != (Dim3{X: 4, Y: 1, Z: 1}) {
		t.Errorf("normalize = %v", got)
	}
	if got := (Dim3{X: 2, Y: 3, Z: 4}).Size(); got != 24 {
		t.Errorf("Size = %d, want 24", got)
	}

	dim := Dim3{X: 3, Y: 4, Z: 2}
	for linear := 0; linear < dim.Size(); linear++ {
		p := linearTo3D(linear, dim)
		if back := p.Z*dim.X*dim.Y + p.Y*dim.X + p.X; back != linear {
			t.Fatalf("linearTo3D(%d) = %v does not round-trip", linear, p)
		}
	}
}

func TestVersion(t *testing.T) {
	version, sum := Version()
	if version == "" && sum != "" {
		t.Errorf("checksum %q without a version", sum)
	}
	t.Logf("version %q", version)
}
