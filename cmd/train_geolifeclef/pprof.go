package main

import "os"
import "runtime/pprof"

import "k8s.io/klog/v2"

// startProfile collects a CPU profile into default.pgo until the returned
// function is called.
func startProfile() func() {
	f, err := os.Create("default.pgo")
	if err != nil {
		klog.ErrorS(err, "pgo profile disabled")
		return func() {}
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		klog.ErrorS(err, "pgo profile disabled")
		f.Close()
		return func() {}
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
		klog.InfoS("wrote cpu profile", "path", "default.pgo")
	}
}
