package matmul

// MultiplyHost computes c = a·b on the calling goroutine with exactly the
// rounding sequence of TileKernel: each output accumulates the products in
// ascending k, chunk after chunk, each product rounded before the add.
// With a single thread there is nothing to synchronize, so the tiles are
// read straight from the operands.
//
// Shapes are validated as for Multiply.
func MultiplyHost(a, b, c *Matrix) error {
	if err := ValidateShapes(a, b, c); err != nil {
		return err
	}
	n, m, l := a.Rows, a.Cols, b.Cols

	for i := 0; i < n; i++ {
		for j := 0; j < l; j++ {
			var sum float32
			for kb := 0; kb < m; kb += TileSize {
				for k := kb; k < kb+TileSize; k++ {
					sum += float32(a.Data[i*m+k] * b.Data[k*l+j])
				}
			}
			c.Data[i*l+j] = sum
		}
	}
	return nil
}
