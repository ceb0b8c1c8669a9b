// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package guda is a CPU device runtime with CUDA's execution model.
//
// Kernels are launched over a grid of thread blocks. The threads of a block
// run concurrently, share a block-local memory region obtained from
// ThreadID.Shared, and rendezvous with ThreadID.SyncThreads. Blocks are
// independent and are scheduled over a bounded set of workers.
//
// Launches are asynchronous: work is queued on a Stream and a fault in any
// thread (a panic such as an out-of-range index) is reported by the next
// Synchronize as an execution error. Device memory is tracked per Context
// and released on Free.
//
// The matmul subpackage builds a shared-memory tiled matrix multiply on top
// of this runtime, and verify provides the CPU reference used to check it.
package guda
