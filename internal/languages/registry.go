package languages

import (
	"errors"
	"regexp"
	"sync"
)

// ErrNotFound is returned by Lookup for an unregistered tag.
var ErrNotFound = errors.New("language: tag not registered")

// Registry is an immutable-after-construction lookup table from language
// tag to Spec. The zero value is not usable; build one with NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry builds a registry from an explicit slice of specs. Any slice
// satisfying the Spec contract is valid configuration — the registry itself
// has no opinion on which languages exist.
func NewRegistry(specs []Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		r.specs[s.Tag] = s
	}
	return r
}

// Lookup resolves a tag to its Spec.
func (r *Registry) Lookup(tag string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[tag]
	if !ok {
		return Spec{}, ErrNotFound
	}
	return s, nil
}

// List returns the registered tags in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.specs))
	for t := range r.specs {
		tags = append(tags, t)
	}
	return tags
}

// Images returns the set of distinct image names across all registered
// languages, used at startup to ensure the sandbox driver has them locally.
func (r *Registry) Images() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.specs))
	images := make([]string, 0, len(r.specs))
	for _, s := range r.specs {
		if seen[s.Image] {
			continue
		}
		seen[s.Image] = true
		images = append(images, s.Image)
	}
	return images
}

var (
	pyStdin   = regexp.MustCompile(`(?i)input\s*\(`)
	jsStdin   = regexp.MustCompile(`(?i)readline|process\.stdin`)
	javaStdin = regexp.MustCompile(`(?i)Scanner|BufferedReader`)
	cppStdin  = regexp.MustCompile(`(?i)\bcin\b|getline|scanf`)
	rubyStdin = regexp.MustCompile(`(?i)\bgets\b|readline`)
	goStdin   = regexp.MustCompile(`(?i)\.Scan\(|ReadString`)
	dartStdin = regexp.MustCompile(`(?i)readLineSync|stdin\.read`)
)

// Default returns the out-of-the-box language table: a representative
// superset of the source's documented languages, large enough to exercise
// every source-filename rule and both memory classes spec.md §4.1 names.
func Default() []Spec {
	return []Spec{
		{
			Tag:            "python",
			Image:          "python:3.11-slim",
			SourceFilename: "script.py",
			RunCommand:     []string{"python3", "script.py"},
			MemoryClass:    MemoryStandard,
			StdinDetector:  pyStdin,
		},
		{
			Tag:            "javascript",
			Image:          "node:20-slim",
			SourceFilename: "script.js",
			RunCommand:     []string{"node", "script.js"},
			MemoryClass:    MemoryStandard,
			StdinDetector:  jsStdin,
		},
		{
			Tag:               "typescript",
			Image:             "node:20-slim",
			SourceFilename:    "script.ts",
			CompileRunCommand: "tsc --outDir /tmp/build script.ts && node /tmp/build/script.js",
			MemoryClass:       MemoryStandard,
			StdinDetector:     jsStdin,
		},
		{
			Tag:               "cpp",
			Image:             "gcc:13",
			SourceFilename:    "main.cpp",
			CompileRunCommand: "mkdir -p /tmp/build && g++ -O2 -o /tmp/build/main main.cpp && /tmp/build/main",
			MemoryClass:       MemoryStandard,
			StdinDetector:     cppStdin,
		},
		{
			Tag:               "go",
			Image:             "golang:1.22-alpine",
			SourceFilename:    "main.go",
			CompileRunCommand: "mkdir -p /tmp/build && go build -o /tmp/build/main main.go && /tmp/build/main",
			MemoryClass:       MemoryStandard,
			StdinDetector:     goStdin,
		},
		{
			Tag:               "java",
			Image:             "eclipse-temurin:21-jdk",
			SourceFilename:    "Main.java",
			CompileRunCommand: "javac -d /tmp/build Main.java && java -cp /tmp/build Main",
			MemoryClass:       MemoryHeavy,
			StdinDetector:     javaStdin,
		},
		{
			Tag:            "ruby",
			Image:          "ruby:3.3-slim",
			SourceFilename: "script.rb",
			RunCommand:     []string{"ruby", "script.rb"},
			MemoryClass:    MemoryStandard,
			StdinDetector:  rubyStdin,
		},
		{
			Tag:               "dart",
			Image:             "dart:stable",
			SourceFilename:    "main.dart",
			CompileRunCommand: "mkdir -p /tmp/build && dart compile exe main.dart -o /tmp/build/main && /tmp/build/main",
			MemoryClass:       MemoryHeavy,
			StdinDetector:     dartStdin,
		},
	}
}
