// Package archive talks to the content-addressed object store that holds
// the canonical certificate documents.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"certledger/internal/domain"
)

const maxDocumentBytes = 1 << 20

type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("archive base url is required")
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpDo:  doer,
	}, nil
}

type putRequest struct {
	Document json.RawMessage   `json:"document"`
	Metadata map[string]string `json:"metadata"`
}

type putResponse struct {
	ContentHash string `json:"content_hash"`
}

// Archive stores the canonical document and returns its content hash. The
// store's hash must agree with the locally computed one; a disagreement is
// surfaced, never papered over with a synthetic hash.
func (c *Client) Archive(ctx context.Context, cert domain.Certificate) (string, error) {
	document, err := BuildDocument(cert)
	if err != nil {
		return "", err
	}
	localHash := DocumentHash(document)

	body, err := json.Marshal(putRequest{
		Document: json.RawMessage(document),
		Metadata: map[string]string{
			"certificate_id":     cert.ID,
			"certificate_number": cert.CertificateNumber,
			"organization":       cert.Organization.Name,
			"standard":           cert.Standard.Number,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/objects", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpDo(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: store returned %d", domain.ErrArchiveUnavailable, resp.StatusCode)
	}

	var out putResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	if out.ContentHash == "" {
		return "", fmt.Errorf("%w: store returned no content hash", domain.ErrArchiveUnavailable)
	}
	if !strings.EqualFold(out.ContentHash, localHash) {
		return "", fmt.Errorf("archive hash disagreement: store %s, local %s", out.ContentHash, localHash)
	}
	return localHash, nil
}

// Fetch retrieves a previously archived document for integrity checking.
func (c *Client) Fetch(ctx context.Context, contentHash string) (*domain.ArchivedDocument, error) {
	if contentHash == "" {
		return nil, errors.New("content hash is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/objects/"+contentHash, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpDo(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrDocumentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: store returned %d", domain.ErrArchiveUnavailable, resp.StatusCode)
	}
	return &domain.ArchivedDocument{
		ContentHash: contentHash,
		Body:        body,
	}, nil
}

var _ domain.DocumentArchiver = (*Client)(nil)
