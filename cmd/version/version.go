package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Default build-time variables.
// These values are overridden via ldflags
var (
	Version   = "unknown-version"
	GitCommit = "unknown-commit"
	BuildTime = "unknown-buildtime"
)

// BuildInfo describes the binary and the processor it runs on.
func BuildInfo() string {
	var buildInfo strings.Builder
	fmt.Fprintln(&buildInfo, "Version:\t", Version)
	fmt.Fprintln(&buildInfo, "Go version:\t", runtime.Version())
	fmt.Fprintln(&buildInfo, "Git commit:\t", GitCommit)
	fmt.Fprintln(&buildInfo, "Built:\t\t", BuildTime)
	fmt.Fprintf(&buildInfo, "OS/Arch:\t %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintln(&buildInfo, "CPU:\t\t", cpuid.CPU.BrandName)
	fmt.Fprintf(&buildInfo, "Features:\t AVX2=%v AVX512F=%v NEON=%v\n",
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.AVX512F), cpuid.CPU.Supports(cpuid.ASIMD))
	return buildInfo.String()
}
