package admission

import (
	"testing"

	"converter/format"
)

func lookup(t *testing.T, id string) format.Format {
	t.Helper()
	f, ok := format.NewRegistry().Lookup(id)
	if !ok {
		t.Fatalf("format %s not registered", id)
	}
	return f
}

func TestValidateSignature(t *testing.T) {
	cases := []struct {
		name   string
		format string
		head   []byte
		want   bool
	}{
		{"pdf ok", "pdf", []byte("%PDF-1.7\n"), true},
		{"pdf garbage", "pdf", []byte("MZ\x90\x00"), false},
		{"docx zip", "docx", []byte{0x50, 0x4b, 0x03, 0x04, 0x14, 0x00}, true},
		{"docx not zip", "docx", []byte("%PDF-1.7"), false},
		{"doc ole2", "doc", []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1}, true},
		{"xlsx zip", "xlsx", []byte{0x50, 0x4b, 0x03, 0x04}, true},
		{"png ok", "png", []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00}, true},
		{"png truncated", "png", []byte{0x89, 0x50}, false},
		{"jpeg ok", "jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, true},
		{"gif 89a", "gif", []byte("GIF89a...."), true},
		{"gif 87a", "gif", []byte("GIF87a...."), true},
		{"gif bad", "gif", []byte("GIF00a"), false},
		{"webp ok", "webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), true},
		{"webp wrong riff", "webp", []byte("RIFF\x10\x00\x00\x00WAVEfmt "), false},
		{"tiff little endian", "tiff", []byte{0x49, 0x49, 0x2a, 0x00, 0x08}, true},
		{"tiff big endian", "tiff", []byte{0x4d, 0x4d, 0x00, 0x2a, 0x08}, true},
		{"heic ftyp", "heic", []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c'}, true},
		{"heic no ftyp", "heic", []byte{0x00, 0x00, 0x00, 0x18, 'm', 'o', 'o', 'v'}, false},
		{"rtf ok", "rtf", []byte(`{\rtf1\ansi`), true},
		{"psd ok", "psd", []byte("8BPS\x00\x01"), true},
		{"txt text", "txt", []byte("hello world\n"), true},
		{"txt binary", "txt", []byte{'h', 'i', 0x00, 0x01}, false},
		{"json text", "json", []byte(`{"a":1}`), true},
		{"empty payload", "pdf", nil, false},
		{"empty text", "txt", []byte{}, false},
		{"no known signature passes", "mobi", []byte{0x01, 0x02, 0x03}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ValidateSignature(lookup(t, c.format), c.head); got != c.want {
				t.Errorf("ValidateSignature(%s, %v) = %v, want %v", c.format, c.head, got, c.want)
			}
		})
	}
}
