package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"caseflow/internal/logging"
	"caseflow/internal/services"
)

// DefaultMaxDownloadBytes caps a downloaded attachment when no limit is configured.
const DefaultMaxDownloadBytes int64 = 100 << 20

// DownloadOptions refines DownloadFromURL.
type DownloadOptions struct {
	FileName    string
	Subcategory string
	Headers     http.Header
	Metadata    map[string]string
}

// DefaultFileName names a downloaded attachment when the caller supplies none.
func DefaultFileName(category Category, workUnit string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.pdf", strings.ToLower(string(category)), workUnit, at.Format("20060102_150405"))
}

// DownloadFromURL fetches an attachment and stores it through Upload. A
// content type that does not fit the category is logged, not rejected.
func (s *Store) DownloadFromURL(ctx context.Context, rawURL, workUnit string, category Category, timeout time.Duration, opts DownloadOptions) (UploadResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return UploadResult{}, services.Wrap(services.ErrValidation, component, "download", "build request", err)
	}
	for key, values := range opts.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return UploadResult{}, services.Wrap(services.ErrTimeout, component, "download", rawURL, err)
		}
		return UploadResult{}, services.Wrap(services.ErrTransientSource, component, "download", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UploadResult{}, services.Wrap(services.ErrTransientSource, component, "download",
			fmt.Sprintf("%s returned %d", rawURL, resp.StatusCode), nil)
	}
	if resp.ContentLength > s.maxBytes {
		return UploadResult{}, services.Wrap(services.ErrValidation, component, "download",
			fmt.Sprintf("%s declares %d bytes, limit is %d", rawURL, resp.ContentLength, s.maxBytes), nil)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return UploadResult{}, services.Wrap(services.ErrTransientSource, component, "download", "read body", err)
	}
	if int64(len(content)) > s.maxBytes {
		return UploadResult{}, services.Wrap(services.ErrValidation, component, "download",
			fmt.Sprintf("%s exceeds the %d byte limit", rawURL, s.maxBytes), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	category = ParseCategory(string(category))
	if category.ExpectsPDF() && !strings.Contains(strings.ToLower(contentType), "pdf") {
		logging.WarnWithContext(s.logger, "downloaded content is not labelled as PDF", "blob_content_type_mismatch",
			logging.String(logging.FieldCaseID, workUnit),
			logging.String("content_type", contentType),
			logging.String("url", rawURL),
			logging.String(logging.FieldErrorHint, "source system mislabels content types; stored anyway"),
			logging.String(logging.FieldImpact, "none"),
		)
	}

	fileName := strings.TrimSpace(opts.FileName)
	if fileName == "" {
		fileName = DefaultFileName(category, workUnit, s.now())
	}
	metadata := map[string]string{
		"download_url":       rawURL,
		"download_timestamp": s.now().UTC().Format(time.RFC3339),
		"content_type":       contentType,
		"content_length":     fmt.Sprint(len(content)),
	}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	mediaType := ""
	if category.ExpectsPDF() {
		mediaType = "application/pdf"
	}
	return s.Upload(ctx, UploadRequest{
		Content:     content,
		WorkUnit:    workUnit,
		Category:    category,
		FileName:    fileName,
		Subcategory: opts.Subcategory,
		MediaType:   mediaType,
		SourceURL:   rawURL,
		Metadata:    metadata,
	})
}
