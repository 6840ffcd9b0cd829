//go:build cuda

package device

import "fmt"

import "gorgonia.org/cu"

// cudaDevices lists name and memory of every CUDA device.
func cudaDevices() (out []string) {
	n, err := cu.NumDevices()
	if err != nil {
		return nil
	}
	for i := 0; i < n; i++ {
		dev := cu.Device(i)
		name, err := dev.Name()
		if err != nil {
			continue
		}
		mem, err := dev.TotalMem()
		if err != nil {
			out = append(out, name)
			continue
		}
		out = append(out, fmt.Sprintf("%s %dMiB", name, mem>>20))
	}
	return out
}
