package matmul

import (
	guda "github.com/LynnColeArt/gudamm"
)

// tileElems is the number of float32 values in one tile.
const tileElems = TileSize * TileSize

// SharedMemBytes is the shared memory one block needs: a tile of A and a
// tile of B.
const SharedMemBytes = 2 * tileElems * 4

// TileKernel computes one element of C = A·B per thread. It must be
// launched with TileSize×TileSize blocks over an (N/TileSize)×(L/TileSize)
// grid and SharedMemBytes of shared memory.
//
// Arguments: A, B, C (guda.DevicePtr), M and L (int). A is N×M, B is M×L
// and C is N×L, all row-major. Dimensions are not checked here.
func TileKernel(tid guda.ThreadID, args ...interface{}) {
	a := args[0].(guda.DevicePtr).Float32()
	b := args[1].(guda.DevicePtr).Float32()
	c := args[2].(guda.DevicePtr).Float32()
	m := args[3].(int)
	l := args[4].(int)

	tx, ty := tid.ThreadIdx.X, tid.ThreadIdx.Y
	i := tid.BlockIdx.X*TileSize + tx
	j := tid.BlockIdx.Y*TileSize + ty

	shared := tid.Shared().Float32()
	asub := shared[:tileElems]
	bsub := shared[tileElems : 2*tileElems]

	var sum float32
	for kb := 0; kb < m; kb += TileSize {
		// Each thread stages one element of each tile
		asub[tx*TileSize+ty] = a[i*m+kb+ty]
		bsub[tx*TileSize+ty] = b[(kb+tx)*l+j]

		// Tiles must be complete before anyone reads them
		tid.SyncThreads()

		for k := 0; k < TileSize; k++ {
			// The explicit conversion keeps the product rounded on its own
			// so no platform fuses it into the add.
			sum += float32(asub[tx*TileSize+k] * bsub[k*TileSize+ty])
		}

		// Everyone is done reading before the next chunk overwrites
		tid.SyncThreads()
	}

	c[i*l+j] = sum
}
