package convert

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"testing"

	"converter/format"
	"converter/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func readMultipartFields(t *testing.T, r *http.Request) map[string]string {
	t.Helper()

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("expected multipart/form-data, got %q (err=%v)", mediaType, err)
	}

	reader := multipart.NewReader(r.Body, params["boundary"])
	defer func() { _ = r.Body.Close() }()

	fields := make(map[string]string)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read multipart part: %v", err)
		}
		b, _ := io.ReadAll(part)
		fields[part.FormName()] = string(b)
		_ = part.Close()
	}
	return fields
}

func TestRemoteConvert_SendsFormatsAndOptions(t *testing.T) {
	t.Parallel()

	r := NewRemote("http://example.invalid")
	r.client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/convert" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		fields := readMultipartFields(t, req)
		if fields["sourceFormat"] != "docx" || fields["targetFormat"] != "pdf" {
			t.Fatalf("unexpected format fields: %v", fields)
		}
		if fields["quality"] != "90" {
			t.Fatalf("expected quality=90, got %q", fields["quality"])
		}
		if fields["files"] != "dummy" {
			t.Fatalf("expected input payload forwarded, got %q", fields["files"])
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("%PDF-1.4\n%EOF\n"))),
			Header:     make(http.Header),
		}, nil
	})

	out, err := r.Convert(context.Background(), []byte("dummy"), "docx", "pdf", models.ConversionOptions{Quality: 90})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("expected converted bytes back, got %q", out)
	}
}

func TestRemoteConvert_ClientErrorIsTerminal(t *testing.T) {
	t.Parallel()

	r := NewRemote("http://example.invalid")
	r.client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		_ = req.Body.Close()
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Body:       io.NopCloser(bytes.NewReader([]byte("corrupt input"))),
			Header:     make(http.Header),
		}, nil
	})

	_, err := r.Convert(context.Background(), []byte("junk"), "docx", "pdf", models.ConversionOptions{})
	if !errors.Is(err, ErrUnconvertible) {
		t.Fatalf("expected ErrUnconvertible for 4xx, got %v", err)
	}
}

func TestRemoteConvert_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	r := NewRemote("http://example.invalid")
	r.client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		_ = req.Body.Close()
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       io.NopCloser(bytes.NewReader([]byte("toolchain overloaded"))),
			Header:     make(http.Header),
		}, nil
	})

	_, err := r.Convert(context.Background(), []byte("dummy"), "xlsx", "pdf", models.ConversionOptions{})
	if err == nil || errors.Is(err, ErrUnconvertible) {
		t.Fatalf("expected a retryable error for 5xx, got %v", err)
	}
}

func TestRegistryFallsBackToSourceCategory(t *testing.T) {
	t.Parallel()

	office := NewRemote("http://office.invalid")
	image := NewRemote("http://image.invalid")

	reg := NewRegistry()
	reg.Register(format.CategoryDocument, office)
	reg.Register(format.CategoryImage, image)

	if c, ok := reg.For(format.CategoryDocument, format.CategoryImage); !ok || c != Converter(office) {
		t.Fatal("expected the document converter for a document target")
	}

	// No presentation converter registered: fall back to the source's.
	if c, ok := reg.For(format.CategoryPresentation, format.CategoryImage); !ok || c != Converter(image) {
		t.Fatal("expected fallback to the source category converter")
	}

	if _, ok := reg.For(format.CategoryPresentation, format.CategorySpreadsheet); ok {
		t.Fatal("expected no converter when neither category is registered")
	}
}
