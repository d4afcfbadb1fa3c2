package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"converter/models"
)

// Remote invokes a conversion toolchain over HTTP. The request is a
// multipart form carrying the input file and the conversion parameters; the
// response body is the converted file.
type Remote struct {
	baseURL string
	client  *http.Client
}

func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 0, // Use context timeout instead
		},
	}
}

func (r *Remote) Convert(ctx context.Context, input []byte, sourceFormat, targetFormat string, opts models.ConversionOptions) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", fmt.Sprintf("input.%s", sourceFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(input)); err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}

	writer.WriteField("sourceFormat", sourceFormat)
	writer.WriteField("targetFormat", targetFormat)
	if opts.Quality > 0 {
		writer.WriteField("quality", strconv.Itoa(opts.Quality))
	}
	if opts.Compression {
		writer.WriteField("compression", "true")
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	url := fmt.Sprintf("%s/convert", r.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("converter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		// 4xx means the toolchain rejected the input itself; retrying the
		// same bytes cannot succeed.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: converter returned status %d: %s", ErrUnconvertible, resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("converter returned status %d: %s", resp.StatusCode, string(respBody))
	}

	output, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted file: %w", err)
	}
	return output, nil
}
