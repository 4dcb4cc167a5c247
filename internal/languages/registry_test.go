package languages

import "testing"

func TestLookupKnownTags(t *testing.T) {
	r := NewRegistry(Default())

	for _, tag := range []string{"python", "cpp", "java", "go", "dart"} {
		if _, err := r.Lookup(tag); err != nil {
			t.Errorf("Lookup(%q): %v", tag, err)
		}
	}
}

func TestLookupUnknownTag(t *testing.T) {
	r := NewRegistry(Default())

	if _, err := r.Lookup("cobol"); err != ErrNotFound {
		t.Errorf("Lookup(cobol) error = %v, want ErrNotFound", err)
	}
}

func TestSourceFilenameRules(t *testing.T) {
	r := NewRegistry(Default())

	cases := map[string]string{
		"java": "Main.java",
		"cpp":  "main.cpp",
		"go":   "main.go",
		"dart": "main.dart",
	}
	for tag, want := range cases {
		s, err := r.Lookup(tag)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tag, err)
		}
		if s.SourceFilename != want {
			t.Errorf("%s source filename = %q, want %q", tag, s.SourceFilename, want)
		}
	}

	py, _ := r.Lookup("python")
	if py.SourceFilename != "script.py" {
		t.Errorf("python source filename = %q, want script.py", py.SourceFilename)
	}
}

func TestMemoryClasses(t *testing.T) {
	r := NewRegistry(Default())

	heavy := []string{"java", "dart"}
	for _, tag := range heavy {
		s, _ := r.Lookup(tag)
		if s.MemoryClass != MemoryHeavy {
			t.Errorf("%s memory class = %v, want heavy", tag, s.MemoryClass)
		}
	}

	standard := []string{"python", "javascript", "cpp", "go", "ruby"}
	for _, tag := range standard {
		s, _ := r.Lookup(tag)
		if s.MemoryClass != MemoryStandard {
			t.Errorf("%s memory class = %v, want standard", tag, s.MemoryClass)
		}
	}
}

func TestStdinDetector(t *testing.T) {
	r := NewRegistry(Default())

	py, _ := r.Lookup("python")
	if !py.DetectsStdin("name = input('name? ')") {
		t.Error("expected python input( to be detected")
	}
	if py.DetectsStdin("print('hello')") {
		t.Error("did not expect stdin detection on plain print")
	}

	cpp, _ := r.Lookup("cpp")
	if !cpp.DetectsStdin("std::cin >> x;") {
		t.Error("expected cpp cin to be detected")
	}

	java, _ := r.Lookup("java")
	if !java.DetectsStdin("Scanner sc = new Scanner(System.in);") {
		t.Error("expected java Scanner to be detected")
	}
}

func TestImagesDeduplicated(t *testing.T) {
	r := NewRegistry(Default())
	images := r.Images()
	seen := make(map[string]bool)
	for _, img := range images {
		if seen[img] {
			t.Fatalf("duplicate image %q in Images()", img)
		}
		seen[img] = true
	}
}
