// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package urbanquery

import "sync/atomic"

// warmupComplete tracks whether the reasoning engine warmup has
// finished. Starts false; set once by the warmup goroutine in main.
var warmupComplete atomic.Bool

// IsWarmupComplete checks if engine warmup has finished.
//
// Thread Safety: This function is safe for concurrent use.
func IsWarmupComplete() bool {
	return warmupComplete.Load()
}

// MarkWarmupComplete marks the warmup as complete. Idempotent.
//
// Thread Safety: This function is safe for concurrent use.
func MarkWarmupComplete() {
	warmupComplete.Store(true)
}

// resetWarmupForTest returns the registry to its initial state.
func resetWarmupForTest() {
	warmupComplete.Store(false)
}
