//go:build !linux

package guda

// getSystemMemory returns total system memory in bytes
func getSystemMemory() uint64 {
	return DefaultDeviceMemory
}
