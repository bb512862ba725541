//go:build !linux

// File: driver/local/copy_other.go
package local

// zeroCopySupported reports false on platforms without copy_file_range;
// copyFile falls back to a buffered read/write loop.
func zeroCopySupported() bool { return false }

func copyFileZeroCopy(src, dst string) error {
	panic("local: copyFileZeroCopy called without zero-copy support")
}
