package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// gotenbergHTMLRoute is the Chromium HTML conversion endpoint.
const gotenbergHTMLRoute = "/forms/chromium/convert/html"

// GotenbergClient uploads HTML documents to a Gotenberg instance.
type GotenbergClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewGotenbergClient returns a client for baseURL with the given timeout.
func NewGotenbergClient(baseURL string, timeout time.Duration) *GotenbergClient {
	return &GotenbergClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// ConvertHTML posts html as index.html and returns the PDF bytes.
func (c *GotenbergClient) ConvertHTML(ctx context.Context, html string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="files"; filename="index.html"`)
	header.Set("Content-Type", "text/html")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, fmt.Errorf("write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+gotenbergHTMLRoute, &body)
	if err != nil {
		return nil, fmt.Errorf("gotenberg request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg conversion failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gotenberg response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("gotenberg conversion failed: status %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}
