// Package format holds the immutable registry of supported file formats and
// the compatibility rules describing which source -> target conversions are
// legal and how costly they are. Both are built once at startup and are safe
// for concurrent reads without locking.
package format

// Category partitions the registry into the four top-level format families.
type Category string

const (
	CategoryDocument     Category = "document"
	CategorySpreadsheet  Category = "spreadsheet"
	CategoryPresentation Category = "presentation"
	CategoryImage        Category = "image"
)

// Categories lists all known categories in display order.
func Categories() []Category {
	return []Category{CategoryDocument, CategorySpreadsheet, CategoryPresentation, CategoryImage}
}

// Format describes one registered file format. The ID is the stable
// identifier used everywhere else in the system.
type Format struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Extension string   `json:"extension"`
	Category  Category `json:"category"`
	MIMEType  string   `json:"mimeType"`
}

// Registry is the load-once lookup table over all supported formats.
type Registry struct {
	byID    map[string]Format
	ordered []Format
}

// NewRegistry builds the registry from the built-in format table.
func NewRegistry() *Registry {
	r := &Registry{
		byID:    make(map[string]Format, len(builtinFormats)),
		ordered: make([]Format, 0, len(builtinFormats)),
	}
	for _, f := range builtinFormats {
		r.byID[f.ID] = f
		r.ordered = append(r.ordered, f)
	}
	return r
}

// Lookup returns the format with the given id. Unknown ids return a zero
// Format and false, never an error.
func (r *Registry) Lookup(id string) (Format, bool) {
	f, ok := r.byID[id]
	return f, ok
}

// All returns every registered format in registration order.
func (r *Registry) All() []Format {
	out := make([]Format, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByCategory returns every format in the given category.
func (r *Registry) ByCategory(c Category) []Format {
	var out []Format
	for _, f := range r.ordered {
		if f.Category == c {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the total number of registered formats.
func (r *Registry) Len() int {
	return len(r.ordered)
}

func doc(id, name, mime string) Format {
	return Format{ID: id, Name: name, Extension: id, Category: CategoryDocument, MIMEType: mime}
}

func sheet(id, name, mime string) Format {
	return Format{ID: id, Name: name, Extension: id, Category: CategorySpreadsheet, MIMEType: mime}
}

func slides(id, name, mime string) Format {
	return Format{ID: id, Name: name, Extension: id, Category: CategoryPresentation, MIMEType: mime}
}

func img(id, name, mime string) Format {
	return Format{ID: id, Name: name, Extension: id, Category: CategoryImage, MIMEType: mime}
}

var builtinFormats = []Format{
	// Documents
	doc("pdf", "PDF", "application/pdf"),
	doc("docx", "Word", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
	doc("doc", "Word (Legacy)", "application/msword"),
	doc("txt", "Plain Text", "text/plain"),
	doc("rtf", "Rich Text", "application/rtf"),
	doc("odt", "OpenDocument Text", "application/vnd.oasis.opendocument.text"),
	doc("html", "HTML", "text/html"),
	doc("htm", "HTML", "text/html"),
	doc("xhtml", "XHTML", "application/xhtml+xml"),
	doc("mhtml", "MHTML Archive", "multipart/related"),
	doc("mht", "MHT Archive", "multipart/related"),
	doc("md", "Markdown", "text/markdown"),
	doc("docm", "Word (Macro-Enabled)", "application/vnd.ms-word.document.macroEnabled.12"),
	doc("dot", "Word Template (Legacy)", "application/msword"),
	doc("dotx", "Word Template", "application/vnd.openxmlformats-officedocument.wordprocessingml.template"),
	doc("dotm", "Word Template (Macro-Enabled)", "application/vnd.ms-word.template.macroEnabled.12"),
	doc("json", "JSON", "application/json"),
	doc("xml", "XML", "application/xml"),
	doc("yaml", "YAML", "application/yaml"),
	doc("yml", "YAML", "application/yaml"),
	doc("eml", "Email Message", "message/rfc822"),
	doc("msg", "Outlook Message", "application/vnd.ms-outlook"),
	doc("ics", "iCalendar", "text/calendar"),
	doc("vcs", "vCalendar", "text/x-vcalendar"),
	doc("vcf", "vCard", "text/vcard"),
	doc("epub", "ePub", "application/epub+zip"),
	doc("mobi", "Mobipocket", "application/x-mobipocket-ebook"),
	doc("prc", "Mobipocket (PRC)", "application/x-mobipocket-ebook"),
	doc("one", "OneNote", "application/onenote"),
	doc("chm", "Compiled HTML Help", "application/vnd.ms-htmlhelp"),
	doc("tex", "LaTeX", "application/x-tex"),
	doc("xmind", "XMind Map", "application/vnd.xmind.workbook"),
	doc("pst", "Outlook Data File", "application/vnd.ms-outlook-pst"),
	doc("sdf", "Standard Data File", "text/plain"),
	doc("ini", "INI Configuration", "text/plain"),
	doc("bas", "BASIC Source", "text/plain"),
	doc("asm", "Assembly Source", "text/plain"),
	doc("cbl", "COBOL Source", "text/plain"),
	doc("vbp", "Visual Basic Project", "text/plain"),
	doc("pas", "Pascal Source", "text/plain"),
	doc("apa", "APA Document", "text/plain"),
	doc("bet", "BETA Source", "text/plain"),
	doc("asc", "ASCII Text", "text/plain"),

	// Spreadsheets
	sheet("xlsx", "Excel", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
	sheet("xls", "Excel (Legacy)", "application/vnd.ms-excel"),
	sheet("csv", "CSV", "text/csv"),
	sheet("ods", "OpenDocument Spreadsheet", "application/vnd.oasis.opendocument.spreadsheet"),
	sheet("tsv", "TSV", "text/tab-separated-values"),
	sheet("xlsm", "Excel (Macro-Enabled)", "application/vnd.ms-excel.sheet.macroEnabled.12"),
	sheet("xlsb", "Excel Binary", "application/vnd.ms-excel.sheet.binary.macroEnabled.12"),
	sheet("xlt", "Excel Template (Legacy)", "application/vnd.ms-excel"),
	sheet("xltx", "Excel Template", "application/vnd.openxmlformats-officedocument.spreadsheetml.template"),
	sheet("xltm", "Excel Template (Macro-Enabled)", "application/vnd.ms-excel.template.macroEnabled.12"),
	sheet("wps", "Works Spreadsheet", "application/vnd.ms-works"),
	sheet("ott", "OpenDocument Template", "application/vnd.oasis.opendocument.text-template"),
	sheet("wks", "Works Sheet", "application/vnd.ms-works"),
	sheet("wk3", "Lotus 1-2-3", "application/vnd.lotus-1-2-3"),
	sheet("numbers", "Apple Numbers", "application/vnd.apple.numbers"),
	sheet("sylk", "SYLK", "text/vnd.sylk"),
	sheet("dif", "Data Interchange Format", "application/x-dif"),

	// Presentations
	slides("pptx", "PowerPoint", "application/vnd.openxmlformats-officedocument.presentationml.presentation"),
	slides("ppt", "PowerPoint (Legacy)", "application/vnd.ms-powerpoint"),
	slides("odp", "OpenDocument Presentation", "application/vnd.oasis.opendocument.presentation"),
	slides("pptm", "PowerPoint (Macro-Enabled)", "application/vnd.ms-powerpoint.presentation.macroEnabled.12"),
	slides("pps", "PowerPoint Slideshow (Legacy)", "application/vnd.ms-powerpoint"),
	slides("ppsx", "PowerPoint Slideshow", "application/vnd.openxmlformats-officedocument.presentationml.slideshow"),
	slides("key", "Apple Keynote", "application/vnd.apple.keynote"),

	// Images
	img("jpg", "JPEG", "image/jpeg"),
	img("jpeg", "JPEG", "image/jpeg"),
	img("png", "PNG", "image/png"),
	img("gif", "GIF", "image/gif"),
	img("webp", "WebP", "image/webp"),
	img("bmp", "Bitmap", "image/bmp"),
	img("tiff", "TIFF", "image/tiff"),
	img("tif", "TIFF", "image/tiff"),
	img("heic", "HEIC", "image/heic"),
	img("heif", "HEIF", "image/heif"),
	img("avif", "AVIF", "image/avif"),
	img("flif", "FLIF", "image/flif"),
	img("pcx", "PCX", "image/x-pcx"),
	img("rle", "RLE Bitmap", "image/x-rle"),
	img("dib", "Device-Independent Bitmap", "image/bmp"),
	img("wbmp", "Wireless Bitmap", "image/vnd.wap.wbmp"),
	img("pcd", "Kodak Photo CD", "image/x-photo-cd"),
	img("pgm", "Portable Graymap", "image/x-portable-graymap"),
	img("pict", "Macintosh PICT", "image/x-pict"),
	img("tga", "Targa", "image/x-tga"),
	img("xcf", "GIMP Image", "image/x-xcf"),
	img("yuv", "YUV Raw", "image/x-raw-yuv"),
	img("hdr", "Radiance HDR", "image/vnd.radiance"),
	img("ico", "Windows Icon", "image/x-icon"),
	img("cur", "Windows Cursor", "image/x-win-bitmap"),
	img("ani", "Animated Cursor", "application/x-navi-animation"),
	img("svg", "SVG", "image/svg+xml"),
	img("svgz", "Compressed SVG", "image/svg+xml"),
	img("eps", "Encapsulated PostScript", "application/postscript"),
	img("emf", "Enhanced Metafile", "image/emf"),
	img("wmf", "Windows Metafile", "image/wmf"),
	img("raw", "Camera RAW", "image/x-raw"),
	img("dng", "Adobe DNG", "image/x-adobe-dng"),
	img("nef", "Nikon RAW", "image/x-nikon-nef"),
	img("orf", "Olympus RAW", "image/x-olympus-orf"),
	img("pef", "Pentax RAW", "image/x-pentax-pef"),
	img("raf", "Fujifilm RAW", "image/x-fuji-raf"),
	img("cr2", "Canon RAW", "image/x-canon-cr2"),
	img("crw", "Canon RAW (Legacy)", "image/x-canon-crw"),
	img("arw", "Sony RAW", "image/x-sony-arw"),
	img("sfw", "Seattle FilmWorks", "image/x-sfw"),
	img("kdc", "Kodak DC RAW", "image/x-kodak-kdc"),
	img("psd", "Photoshop", "image/vnd.adobe.photoshop"),
	img("ai", "Adobe Illustrator", "application/postscript"),
	img("cdr", "CorelDRAW", "application/vnd.corel-draw"),
	img("cmx", "Corel Exchange", "image/x-cmx"),
	img("djvu", "DjVu", "image/vnd.djvu"),
	img("jp2", "JPEG 2000", "image/jp2"),
	img("jpx", "JPEG 2000 (JPX)", "image/jpx"),
	img("fpx", "FlashPix", "image/vnd.fpx"),
}
