// Package cpufeature reports which CPU capabilities the hashing packages
// would like to use for their fast paths.
//
// Nothing in this module currently ships assembly fast paths (the CLHash and
// Haraka implementations are portable Go), but the detection is wired up the
// way the rest of the corpus gates SIMD code so that a future assembly
// implementation of clhash.Hash or haraka.Haraka512Keyed can flip on without
// touching call sites.
package cpufeature

import "golang.org/x/sys/cpu"

// Supported reports whether the running CPU has the instruction set
// VerusHash v2.2 was designed around: AES-NI, AVX and PCLMULQDQ. A machine
// lacking any of these still runs the portable Go path correctly, just
// slower, so callers should treat this as informational rather than a hard
// precondition.
func Supported() bool {
	return cpu.X86.HasAES && cpu.X86.HasAVX && cpu.X86.HasPCLMULQDQ
}

// Report describes the individual flags that feed Supported, for diagnostics
// and the stats API.
type Report struct {
	AES      bool
	AVX      bool
	AVX2     bool
	PCLMULQDQ bool
}

// Detect returns the current machine's relevant flags.
func Detect() Report {
	return Report{
		AES:       cpu.X86.HasAES,
		AVX:       cpu.X86.HasAVX,
		AVX2:      cpu.X86.HasAVX2,
		PCLMULQDQ: cpu.X86.HasPCLMULQDQ,
	}
}
