package format

import "testing"

func newTestRules(t *testing.T) (*Registry, *Rules) {
	t.Helper()
	reg := NewRegistry()
	return reg, NewRules(reg)
}

func TestRegistryCounts(t *testing.T) {
	reg := NewRegistry()

	if got := reg.Len(); got != 117 {
		t.Fatalf("expected 117 formats, got %d", got)
	}

	want := map[Category]int{
		CategoryDocument:     43,
		CategorySpreadsheet:  17,
		CategoryPresentation: 7,
		CategoryImage:        50,
	}
	for cat, n := range want {
		if got := len(reg.ByCategory(cat)); got != n {
			t.Errorf("category %s: expected %d formats, got %d", cat, n, got)
		}
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Lookup("exe"); ok {
		t.Fatal("unexpected hit for unregistered format")
	}
}

func TestNoSelfConversion(t *testing.T) {
	reg, rules := newTestRules(t)
	for _, f := range reg.All() {
		if rules.Supported(f.ID, f.ID) {
			t.Errorf("%s -> %s must not be supported", f.ID, f.ID)
		}
		for _, target := range rules.Targets(f.ID) {
			if target == f.ID {
				t.Errorf("Targets(%s) contains the source itself", f.ID)
			}
		}
	}
}

func TestTargetsDeduplicated(t *testing.T) {
	reg, rules := newTestRules(t)
	for _, f := range reg.All() {
		seen := make(map[string]bool)
		for _, target := range rules.Targets(f.ID) {
			if seen[target] {
				t.Errorf("Targets(%s) lists %s twice", f.ID, target)
			}
			seen[target] = true
		}
	}
}

// Every pair inside a same-category group must be reachable, except
// programming sources which only ever target txt.
func TestSameCategoryClosure(t *testing.T) {
	reg, rules := newTestRules(t)

	progs := toSet(programmingIDs)
	for _, cat := range Categories() {
		if cat == CategoryImage {
			continue // images close over the core rasters only
		}
		formats := reg.ByCategory(cat)
		for _, src := range formats {
			if progs[src.ID] {
				continue
			}
			for _, tgt := range formats {
				if src.ID == tgt.ID {
					continue
				}
				if !rules.Supported(src.ID, tgt.ID) {
					t.Errorf("same-category pair %s -> %s should be supported", src.ID, tgt.ID)
				}
			}
		}
	}
}

func TestCoreRasterClosure(t *testing.T) {
	_, rules := newTestRules(t)
	for _, src := range coreRasterIDs {
		for _, tgt := range coreRasterIDs {
			if src == tgt {
				continue
			}
			if !rules.Supported(src, tgt) {
				t.Errorf("core raster pair %s -> %s should be supported", src, tgt)
			}
		}
	}
}

func TestProgrammingFormatsTargetOnlyTxt(t *testing.T) {
	_, rules := newTestRules(t)
	for _, src := range programmingIDs {
		targets := rules.Targets(src)
		if len(targets) != 1 || targets[0] != "txt" {
			t.Errorf("Targets(%s) = %v, want [txt]", src, targets)
		}
	}
}

func TestUnsupportedPairs(t *testing.T) {
	_, rules := newTestRules(t)

	cases := [][2]string{
		{"cr2", "pptx"},  // camera RAW never targets presentations
		{"png", "docx"},  // raster never targets word processing
		{"nef", "xlsx"},  // RAW never targets spreadsheets
		{"pptx", "webp"}, // slide export stops at png/jpg/jpeg
		{"exe", "pdf"},   // unknown source supports nothing
		{"", "pdf"},
	}
	for _, c := range cases {
		if rules.Supported(c[0], c[1]) {
			t.Errorf("%s -> %s should not be supported", c[0], c[1])
		}
	}

	if got := rules.Targets("exe"); len(got) != 0 {
		t.Errorf("Targets(exe) = %v, want empty", got)
	}
}

func TestBridgeRules(t *testing.T) {
	_, rules := newTestRules(t)

	supported := [][2]string{
		{"docx", "pdf"},
		{"xlsx", "pdf"},
		{"pptx", "jpg"},
		{"png", "pdf"},
		{"pdf", "docx"},
		{"pdf", "pptx"},
		{"svg", "eps"},
		{"nef", "dng"},
		{"epub", "mobi"},
		{"json", "csv"},
		{"html", "png"},
	}
	for _, c := range supported {
		if !rules.Supported(c[0], c[1]) {
			t.Errorf("%s -> %s should be supported", c[0], c[1])
		}
	}
}

func TestComplexity(t *testing.T) {
	_, rules := newTestRules(t)

	cases := []struct {
		source, target string
		want           int
	}{
		{"png", "jpg", ComplexitySimple},
		{"csv", "tsv", ComplexitySimple},
		{"txt", "html", ComplexitySimple},
		{"docx", "odt", ComplexityModerate},
		{"docx", "pdf", ComplexityModerate},
		{"xlsx", "pdf", ComplexityModerate},
		{"webp", "tiff", ComplexityModerate},
		{"epub", "pdf", ComplexityComplex},
		{"ai", "png", ComplexityComplex},
		{"djvu", "pdf", ComplexityComplex},
		{"nef", "jpg", ComplexityVeryComplex},
		{"psd", "png", ComplexityVeryComplex},
		{"png", "docx", ComplexityVeryComplex}, // unsupported sentinel
		{"exe", "pdf", ComplexityVeryComplex},  // unknown sentinel
	}
	for _, c := range cases {
		if got := rules.Complexity(c.source, c.target); got != c.want {
			t.Errorf("Complexity(%s, %s) = %d, want %d", c.source, c.target, got, c.want)
		}
	}
}

func TestPairCountIsStable(t *testing.T) {
	_, rules := newTestRules(t)
	// The graph is declarative; the closure should be far larger than a
	// hand-kept matrix but bounded by the registry size.
	n := rules.PairCount()
	if n < 2000 || n > 5000 {
		t.Fatalf("unexpected pair count %d", n)
	}
}
