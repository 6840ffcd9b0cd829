//go:build !cuda

package device

func cudaDevices() []string {
	return nil
}
