// Package detector talks to the external deepfake detection service over HTTP.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/framecheck/pkg/models"
)

// Client is the interface for the detection service.
type Client interface {
	Upload(ctx context.Context, file models.Upload) (string, error)
	GetStatus(ctx context.Context, jobID string) (models.StatusReport, error)
	GetResults(ctx context.Context, jobID string) (*models.JobResults, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client using the detection service's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new detection service client.
// The timeout bounds each request, including the upload body transfer.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Upload streams the file to POST /upload as multipart field "file" and
// returns the job id assigned by the service.
func (c *HTTPClient) Upload(ctx context.Context, file models.Upload) (string, error) {
	if file.Body == nil {
		return "", fmt.Errorf("upload %q: no body", file.Filename)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreatePart(filePartHeader(file))
		if err == nil {
			_, err = io.Copy(part, file.Body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	c.setHeaders(httpReq)

	var out uploadResponse
	if err := c.do(httpReq, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("%w: upload response has no job_id", ErrInvalidResponse)
	}
	return string(out.JobID), nil
}

// GetStatus reads GET /status/{id}. The status is lower-cased; interpreting
// it is left to the caller.
func (c *HTTPClient) GetStatus(ctx context.Context, jobID string) (models.StatusReport, error) {
	httpReq, err := c.newGet(ctx, "/status/"+url.PathEscape(jobID))
	if err != nil {
		return models.StatusReport{}, err
	}

	var out statusResponse
	if err := c.do(httpReq, &out); err != nil {
		return models.StatusReport{}, err
	}
	if out.Status == "" {
		return models.StatusReport{}, fmt.Errorf("%w: status response has no status", ErrInvalidResponse)
	}
	return out.report(), nil
}

// GetResults reads GET /results/{id} and unwraps the "results" envelope.
func (c *HTTPClient) GetResults(ctx context.Context, jobID string) (*models.JobResults, error) {
	httpReq, err := c.newGet(ctx, "/results/"+url.PathEscape(jobID))
	if err != nil {
		return nil, err
	}

	var out resultsEnvelope
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	if out.Results == nil {
		return nil, fmt.Errorf("%w: results response has no results", ErrInvalidResponse)
	}
	return out.Results.toModel(), nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	httpReq, err := c.newGet(ctx, "/health")
	if err != nil {
		return err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: detection service not ready (status %d)", ErrServiceUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) newGet(ctx context.Context, path string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	return httpReq, nil
}

// do sends the request and decodes a 2xx JSON body into out.
func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newServiceError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(file models.Upload) textproto.MIMEHeader {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Filename)))
	h.Set("Content-Type", contentType)
	return h
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
