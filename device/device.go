// Package device reports the compute resources available to training and
// derives default worker counts from them.
package device

import "fmt"
import "runtime"
import "strings"

import "github.com/klauspost/cpuid/v2"

// Info describes the host.
type Info struct {
	Brand         string
	PhysicalCores int
	LogicalCores  int
	Features      []string

	// CUDA lists the CUDA devices; empty unless built with the cuda tag.
	CUDA []string
}

var features = []struct {
	name string
	id   cpuid.FeatureID
}{
	{"SSE4.2", cpuid.SSE42},
	{"AVX", cpuid.AVX},
	{"AVX2", cpuid.AVX2},
	{"FMA3", cpuid.FMA3},
	{"AVX512F", cpuid.AVX512F},
	{"ASIMD", cpuid.ASIMD},
}

// Probe inspects the CPU and, when available, CUDA devices.
func Probe() Info {
	info := Info{
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		CUDA:          cudaDevices(),
	}
	if info.Brand == "" {
		info.Brand = runtime.GOARCH
	}
	for _, f := range features {
		if cpuid.CPU.Supports(f.id) {
			info.Features = append(info.Features, f.name)
		}
	}
	return info
}

// DefaultWorkers is the number of loader workers used when none is
// configured: the logical core count, or runtime.NumCPU when cpuid can't tell.
func DefaultWorkers() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// String renders a one line summary.
func (i Info) String() string {
	s := fmt.Sprintf("%s (%d cores, %d threads) [%s]", i.Brand, i.PhysicalCores, i.LogicalCores,
		strings.Join(i.Features, " "))
	if len(i.CUDA) > 0 {
		s += " cuda: " + strings.Join(i.CUDA, ", ")
	}
	return s
}
