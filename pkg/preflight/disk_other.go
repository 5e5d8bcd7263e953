//go:build !darwin && !linux

package preflight

import "fmt"

// FreeBytes is not implemented on this platform
func FreeBytes(path string) (uint64, error) {
	return 0, fmt.Errorf("free space check unsupported on this platform")
}
