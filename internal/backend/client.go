// Package backend talks to the receipt-analysis service that performs OCR
// and stores receipts.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/zombor/receipt-scanner/internal/receipt"
)

const (
	listPath   = "/api/receipts"
	uploadPath = "/api/receipts/upload"

	// uploadField is the multipart field the backend reads the image from
	uploadField = "file"

	maxErrorBody = 4096
)

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("receipt backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("receipt backend returned status %d: %s", e.StatusCode, e.Message)
}

// Client implements receipt.Backend over HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

var _ receipt.Backend = (*Client)(nil)

// New creates a Client for the service at baseURL. A zero timeout means no timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListReceipts fetches all receipts in the order the service stores them
func (c *Client) ListReceipts(ctx context.Context) ([]receipt.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+listPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling receipt backend: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var records []receipt.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding receipts: %w", err)
	}
	if records == nil {
		records = []receipt.Record{}
	}
	return records, nil
}

// UploadReceipt posts the file as multipart form data. The response body is not used.
func (c *Client) UploadReceipt(ctx context.Context, file *receipt.File) error {
	body, contentType, err := multipartBody(file)
	if err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling receipt backend: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// multipartBody encodes file under the upload field, keeping its filename and content type
func multipartBody(file *receipt.File) (*bytes.Buffer, string, error) {
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, file.Filename))
	if file.ContentType != "" {
		header.Set("Content-Type", file.ContentType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &b, writer.FormDataContentType(), nil
}

// checkStatus turns a non-2xx response into a StatusError carrying the backend's message
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	if body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil {
		statusErr.Message = strings.TrimSpace(string(body))
	}
	return statusErr
}
