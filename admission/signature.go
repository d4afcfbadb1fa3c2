package admission

import (
	"bytes"

	"converter/format"
)

// Content-signature tables. A declared format either has an enumerated set
// of accepted leading-byte signatures, counts as plain text (checked for
// binary garbage), or is skipped because its container has no reliable
// magic. The check exists to stop callers routing arbitrary bytes through a
// converter they are not entitled to, and to catch truncated uploads early.

var (
	sigZip  = []byte{0x50, 0x4b, 0x03, 0x04} // OOXML/ODF/ePub containers
	sigOLE2 = []byte{0xd0, 0xcf, 0x11, 0xe0} // legacy Office compound files
)

var signatures = map[string][][]byte{
	"pdf": {[]byte("%PDF")},

	// ZIP-container office formats
	"docx": {sigZip}, "docm": {sigZip}, "dotx": {sigZip}, "dotm": {sigZip},
	"xlsx": {sigZip}, "xlsm": {sigZip}, "xlsb": {sigZip}, "xltx": {sigZip}, "xltm": {sigZip},
	"pptx": {sigZip}, "pptm": {sigZip}, "ppsx": {sigZip},
	"odt": {sigZip}, "ods": {sigZip}, "odp": {sigZip}, "ott": {sigZip},
	"epub": {sigZip}, "key": {sigZip}, "numbers": {sigZip}, "xmind": {sigZip},

	// OLE2 compound-file formats
	"doc": {sigOLE2}, "dot": {sigOLE2},
	"xls": {sigOLE2}, "xlt": {sigOLE2},
	"ppt": {sigOLE2}, "pps": {sigOLE2},
	"msg": {sigOLE2},

	"rtf": {[]byte(`{\rtf`)},

	// Rasters
	"png":  {{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}},
	"jpg":  {{0xff, 0xd8, 0xff}},
	"jpeg": {{0xff, 0xd8, 0xff}},
	"gif":  {[]byte("GIF87a"), []byte("GIF89a")},
	"bmp":  {[]byte("BM")},
	"dib":  {[]byte("BM")},
	"tiff": {{0x49, 0x49, 0x2a, 0x00}, {0x4d, 0x4d, 0x00, 0x2a}},
	"tif":  {{0x49, 0x49, 0x2a, 0x00}, {0x4d, 0x4d, 0x00, 0x2a}},
	"ico":  {{0x00, 0x00, 0x01, 0x00}},
	"cur":  {{0x00, 0x00, 0x02, 0x00}},
	"psd":  {[]byte("8BPS")},
	"svgz": {{0x1f, 0x8b}},
	"pcx":  {{0x0a}},
	"xcf":  {[]byte("gimp xcf")},
	"hdr":  {[]byte("#?RADIANCE")},
	"jp2":  {{0x00, 0x00, 0x00, 0x0c, 0x6a, 0x50, 0x20, 0x20}},
	"jpx":  {{0x00, 0x00, 0x00, 0x0c, 0x6a, 0x50, 0x20, 0x20}},
	"djvu": {[]byte("AT&T")},
	"flif": {[]byte("FLIF")},
	"cr2":  {{0x49, 0x49, 0x2a, 0x00}},
	"nef":  {{0x4d, 0x4d, 0x00, 0x2a}, {0x49, 0x49, 0x2a, 0x00}},
	"arw":  {{0x49, 0x49, 0x2a, 0x00}},
	"dng":  {{0x49, 0x49, 0x2a, 0x00}, {0x4d, 0x4d, 0x00, 0x2a}},
	"orf":  {[]byte("IIRO"), []byte("IIRS")},
	"raf":  {[]byte("FUJIFILM")},
}

// Formats validated as text: leading bytes must be NUL-free.
var textFormats = map[string]bool{
	"txt": true, "md": true, "html": true, "htm": true, "xhtml": true,
	"json": true, "xml": true, "yaml": true, "yml": true,
	"csv": true, "tsv": true, "sylk": true, "dif": true,
	"ics": true, "vcs": true, "vcf": true, "eml": true,
	"tex": true, "ini": true, "sdf": true, "svg": true, "eps": true, "ai": true,
	"bas": true, "asm": true, "cbl": true, "vbp": true, "pas": true,
	"apa": true, "bet": true, "asc": true,
}

// ValidateSignature checks the leading bytes of a payload against what the
// declared format's container is expected to start with. Formats without a
// known signature pass, mirroring the original validators; an empty payload
// never passes.
func ValidateSignature(f format.Format, head []byte) bool {
	if len(head) == 0 {
		return false
	}

	if sigs, ok := signatures[f.ID]; ok {
		for _, sig := range sigs {
			if len(head) >= len(sig) && bytes.Equal(head[:len(sig)], sig) {
				return true
			}
		}
		return false
	}

	switch f.ID {
	case "webp":
		return len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
	case "heic", "heif", "avif":
		// ISO base media: size box then "ftyp".
		return len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp"))
	}

	if textFormats[f.ID] {
		return !bytes.ContainsRune(head, 0)
	}

	// No reliable signature for this container; admit and let the
	// converter reject it if the bytes are garbage.
	return true
}
