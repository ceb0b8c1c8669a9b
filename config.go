// Package guda configuration constants
package guda

// Thread and block limits (CUDA compatibility)
const (
	// Default block size for element-wise helpers
	DefaultBlockSize = 256

	// Maximum threads per block
	MaxThreadsPerBlock = 1024

	// Shared memory available to one block, in bytes
	SharedMemPerBlock = 48 * 1024

	// Warp width reported in device properties
	WarpSize = 32
)

// Memory parameters
const (
	// Memory alignment for allocations (cache line)
	MemoryAlignment = 64

	// Device memory reported when the host total cannot be read
	DefaultDeviceMemory = 16 * 1024 * 1024 * 1024

	// Released allocation records kept for double-free detection
	FreeListThreshold = 100
)

// Stream parameters
const (
	// Pending operations a stream buffers before Submit blocks
	StreamQueueDepth = 1000
)

