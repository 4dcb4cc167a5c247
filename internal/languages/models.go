package languages

import "regexp"

// MemoryClass buckets languages by how much headroom their runtime needs
// before the program under test even allocates anything.
type MemoryClass int

const (
	// MemoryStandard covers runtimes that run comfortably in 100 MiB.
	MemoryStandard MemoryClass = iota
	// MemoryHeavy covers runtimes whose idle footprint exceeds 100 MiB.
	MemoryHeavy
)

// MemoryLimitBytes returns the container Memory/MemorySwap value for the class.
func (c MemoryClass) MemoryLimitBytes() int64 {
	switch c {
	case MemoryHeavy:
		return 256 * 1024 * 1024
	default:
		return 100 * 1024 * 1024
	}
}

// Spec is the immutable record describing one supported language.
//
// A Spec is pure configuration: nothing in the registry, the executors, or
// the sandbox driver depends on the set of tags being any particular size or
// membership, only on each entry satisfying this shape.
type Spec struct {
	// Tag is the short identifier clients send, e.g. "python", "cpp".
	Tag string
	// Image is the prebuilt sandbox image used for interactive sessions
	// and as the base layer for batch ephemeral images.
	Image string
	// SourceFilename is the name the source is written under inside /code.
	SourceFilename string
	// RunCommand is the argument vector executed in the working directory.
	RunCommand []string
	// CompileRunCommand, if set, is a shell command string used instead of
	// RunCommand when the source must be compiled first. Build artifacts
	// must land in a writable scratch directory disjoint from /code.
	CompileRunCommand string
	// MemoryClass selects the container memory/swap ceiling.
	MemoryClass MemoryClass
	// StdinDetector matches source text that reads standard input.
	StdinDetector *regexp.Regexp
}

// DetectsStdin reports whether source looks like it reads from stdin.
func (s Spec) DetectsStdin(source string) bool {
	if s.StdinDetector == nil {
		return false
	}
	return s.StdinDetector.MatchString(source)
}
