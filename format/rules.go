package format

// Conversion complexity levels. Complexity drives worker timeouts and is a
// coarse proxy for how heavy the underlying toolchain invocation is.
const (
	ComplexitySimple      = 1 // direct same-group conversion
	ComplexityModerate    = 2 // cross-category or PDF-mediated
	ComplexityComplex     = 3 // needs specialized codecs
	ComplexityVeryComplex = 4 // needs proprietary-format decoders; also the unsupported sentinel
)

// Cross-cutting subgroups layered on top of the category partition. Adding a
// format to one of these lists is all it takes to give it that group's
// conversion behavior.
var (
	programmingIDs = []string{"bas", "asm", "cbl", "vbp", "pas", "apa", "bet", "asc"}
	htmlFamilyIDs  = []string{"html", "htm", "xhtml", "mhtml", "mht"}
	ebookIDs       = []string{"epub", "mobi", "prc"}
	excelFamilyIDs = []string{"xlsx", "xls", "xlsm", "xlsb", "xlt", "xltx", "xltm"}
	pptFamilyIDs   = []string{"pptx", "ppt", "pptm", "pps", "ppsx"}
	coreRasterIDs  = []string{"jpg", "jpeg", "png", "gif", "webp", "bmp", "tiff", "tif"}
	legacyImageIDs = []string{"pcx", "rle", "dib", "wbmp", "pcd", "pgm", "pict", "tga", "xcf", "yuv", "hdr"}
	iconIDs        = []string{"ico", "cur", "ani"}
	cameraRawIDs   = []string{"raw", "dng", "nef", "orf", "pef", "raf", "cr2", "crw", "arw", "sfw", "kdc"}

	// Formats whose conversions need specialized libraries (complexity 3)
	// or proprietary decoders (complexity 4, the camera RAW set plus PSD).
	specializedIDs = []string{"ai", "cdr", "cmx", "djvu", "jp2", "jpx", "fpx", "one", "chm", "xmind"}
)

// Rules is the computed compatibility graph over a Registry. The target set
// for every source is derived once at construction from category-closure
// rules plus explicit bridge rules, so adding a format to a group never
// requires touching other groups.
type Rules struct {
	reg *Registry

	docIDs, sheetIDs, presIDs, imageIDs []string
	docSet, sheetSet, presSet, imageSet map[string]bool

	programmingSet map[string]bool
	complexSet     map[string]bool
	veryComplexSet map[string]bool

	targets   map[string][]string
	supported map[string]map[string]bool
}

// NewRules computes the full compatibility graph for the given registry.
func NewRules(reg *Registry) *Rules {
	r := &Rules{
		reg:       reg,
		targets:   make(map[string][]string, reg.Len()),
		supported: make(map[string]map[string]bool, reg.Len()),
	}

	for _, f := range reg.All() {
		switch f.Category {
		case CategoryDocument:
			r.docIDs = append(r.docIDs, f.ID)
		case CategorySpreadsheet:
			r.sheetIDs = append(r.sheetIDs, f.ID)
		case CategoryPresentation:
			r.presIDs = append(r.presIDs, f.ID)
		case CategoryImage:
			r.imageIDs = append(r.imageIDs, f.ID)
		}
	}
	r.docSet = toSet(r.docIDs)
	r.sheetSet = toSet(r.sheetIDs)
	r.presSet = toSet(r.presIDs)
	r.imageSet = toSet(r.imageIDs)

	r.programmingSet = toSet(programmingIDs)
	r.veryComplexSet = toSet(append(append([]string{}, cameraRawIDs...), "psd"))
	complex := append([]string{}, cameraRawIDs...)
	complex = append(complex, "psd")
	complex = append(complex, specializedIDs...)
	complex = append(complex, ebookIDs...)
	r.complexSet = toSet(complex)

	for _, f := range reg.All() {
		ts := r.computeTargets(f.ID)
		r.targets[f.ID] = ts
		set := make(map[string]bool, len(ts))
		for _, t := range ts {
			set[t] = true
		}
		r.supported[f.ID] = set
	}
	return r
}

// Supported reports whether source -> target is a legal conversion.
// Identical source and target is never supported, and an unknown source
// supports nothing.
func (r *Rules) Supported(source, target string) bool {
	return r.supported[source][target]
}

// Targets returns every legal target format id for the source, excluding the
// source itself. Unknown sources yield an empty set.
func (r *Rules) Targets(source string) []string {
	ts := r.targets[source]
	out := make([]string, len(ts))
	copy(out, ts)
	return out
}

// PairCount returns the total number of supported conversion pairs.
func (r *Rules) PairCount() int {
	n := 0
	for _, ts := range r.targets {
		n += len(ts)
	}
	return n
}

// Complexity returns the 1..4 cost class of a pair. Unsupported pairs return
// the maximum as a sentinel so callers can treat "not supported" uniformly
// with "too costly to attempt".
func (r *Rules) Complexity(source, target string) int {
	if !r.Supported(source, target) {
		return ComplexityVeryComplex
	}

	if r.complexSet[source] || r.complexSet[target] {
		if r.veryComplexSet[source] || r.veryComplexSet[target] {
			return ComplexityVeryComplex
		}
		return ComplexityComplex
	}

	sameCategory := (r.docSet[source] && r.docSet[target]) ||
		(r.sheetSet[source] && r.sheetSet[target]) ||
		(r.presSet[source] && r.presSet[target]) ||
		(r.imageSet[source] && r.imageSet[target])

	if sameCategory {
		if (inList(source, "jpg", "jpeg", "png", "bmp", "gif") && inList(target, "jpg", "jpeg", "png", "bmp", "gif")) ||
			(inList(source, "txt", "html", "htm") && inList(target, "txt", "html", "htm")) ||
			(inList(source, "csv", "tsv") && inList(target, "csv", "tsv")) {
			return ComplexitySimple
		}
		return ComplexityModerate
	}

	return ComplexityModerate
}

// computeTargets evaluates the rule union for a single source format:
// category closures first, then the enumerated bridge rules, then self
// removal and de-duplication.
func (r *Rules) computeTargets(id string) []string {
	// Programming and plaintext source formats only ever target the
	// universal plain-text format.
	if r.programmingSet[id] {
		return []string{"txt"}
	}

	var targets []string

	if r.docSet[id] {
		targets = append(targets, r.docIDs...)
		targets = append(targets, "pdf")
		switch id {
		case "pdf", "html", "htm", "xhtml":
			targets = append(targets, "png", "jpg", "jpeg")
		}
		if inSlice(htmlFamilyIDs, id) {
			targets = append(targets, htmlFamilyIDs...)
		}
		switch id {
		case "yaml", "yml":
			targets = append(targets, "yaml", "yml", "json", "xml")
		case "json":
			targets = append(targets, "xml", "yaml", "yml", "csv", "txt")
		case "xml":
			targets = append(targets, "json", "yaml", "yml", "csv", "txt")
		case "eml", "msg":
			targets = append(targets, "eml", "msg", "pdf", "docx", "txt")
		case "ics", "vcs":
			targets = append(targets, "ics", "vcs", "csv", "json")
		case "vcf":
			targets = append(targets, "csv", "json", "txt")
		}
		if inSlice(ebookIDs, id) {
			targets = append(targets, ebookIDs...)
			targets = append(targets, "pdf", "txt")
		}
	}

	if r.sheetSet[id] {
		targets = append(targets, r.sheetIDs...)
		targets = append(targets, "pdf")
		if id != "csv" && id != "tsv" {
			targets = append(targets, "csv", "tsv")
		}
		if id == "csv" {
			targets = append(targets, "tsv")
		}
		if id == "tsv" {
			targets = append(targets, "csv")
		}
		targets = append(targets, "json", "xml")
		if inSlice(excelFamilyIDs, id) {
			targets = append(targets, excelFamilyIDs...)
		}
	}

	if r.presSet[id] {
		targets = append(targets, r.presIDs...)
		targets = append(targets, "pdf")
		targets = append(targets, "png", "jpg", "jpeg")
		if inSlice(pptFamilyIDs, id) {
			targets = append(targets, pptFamilyIDs...)
		}
	}

	if r.imageSet[id] {
		// Every image can reach the core rasters; core rasters also close
		// over themselves.
		targets = append(targets, coreRasterIDs...)
		switch id {
		case "heic", "heif":
			targets = append(targets, "heic", "heif", "jpg", "jpeg", "png", "tiff", "tif")
		case "avif":
			targets = append(targets, "jpg", "jpeg", "png", "webp", "tiff", "tif")
		case "flif":
			targets = append(targets, "png", "jpg", "jpeg", "tiff", "tif")
		}
		if inSlice(legacyImageIDs, id) {
			targets = append(targets, "jpg", "jpeg", "png", "bmp", "tiff", "tif")
		}
		if inSlice(iconIDs, id) {
			targets = append(targets, "ico", "cur", "png", "jpg", "jpeg", "bmp")
		}
		switch id {
		case "svg", "svgz":
			targets = append(targets, "svg", "svgz", "png", "jpg", "jpeg", "pdf", "eps")
		case "eps":
			targets = append(targets, "pdf", "svg", "png", "jpg", "jpeg", "tiff", "tif")
		case "emf", "wmf":
			targets = append(targets, "png", "jpg", "jpeg", "svg", "pdf")
		}
		if inSlice(cameraRawIDs, id) {
			targets = append(targets, "jpg", "jpeg", "png", "tiff", "tif", "dng")
		}
		switch id {
		case "psd":
			targets = append(targets, "png", "jpg", "jpeg", "tiff", "tif", "pdf", "bmp")
		case "ai":
			targets = append(targets, "pdf", "svg", "png", "jpg", "jpeg", "eps")
		case "cdr", "cmx":
			targets = append(targets, "png", "jpg", "jpeg", "svg", "pdf", "eps")
		case "djvu":
			targets = append(targets, "pdf", "png", "jpg", "jpeg")
		case "jp2", "jpx":
			targets = append(targets, "jpg", "jpeg", "png", "tiff", "tif")
		case "fpx":
			targets = append(targets, "jpg", "jpeg", "png", "tiff", "tif")
		}
		targets = append(targets, "pdf")
	}

	// PDF bridges out to every category.
	if id == "pdf" {
		targets = append(targets,
			"docx", "doc", "txt", "rtf", "odt", "html", "htm",
			"png", "jpg", "jpeg", "tiff", "tif",
			"xlsx", "csv",
			"pptx",
		)
	}

	return dedupeWithout(targets, id)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func inSlice(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func inList(id string, ids ...string) bool {
	return inSlice(ids, id)
}

func dedupeWithout(ids []string, exclude string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == exclude || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
