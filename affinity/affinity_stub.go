//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package affinity

import "runtime"

func maxCPU() int { return runtime.NumCPU() }

func setAffinityPlatform(cpuID int) error {
	return ErrUnsupported
}

// CurrentAffinity is not reported on this platform.
func CurrentAffinity() ([]int, error) {
	return nil, ErrUnsupported
}
