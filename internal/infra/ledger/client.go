// Package ledger talks to the certificate registry contract through the
// ledger gateway. The gateway owns transport and signing credentials; this
// client owns fee estimation, submission ordering, and confirmation waits.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"certledger/internal/domain"
)

const (
	// feeMarginPercent is the safety margin applied on top of the gateway's
	// fee estimate before submission.
	feeMarginPercent = 25

	defaultPollInterval = 2 * time.Second

	maxResponseBytes = 256 * 1024
)

type Client struct {
	baseURL      string
	network      string
	httpDo       func(*http.Request) (*http.Response, error)
	pollInterval time.Duration

	// Submissions for one signing identity must serialize at the nonce
	// level; distinct tenants may proceed in parallel.
	mu      sync.Mutex
	signers map[string]*sync.Mutex
}

func NewClient(baseURL, network string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("ledger base url is required")
	}
	if network == "" {
		network = "testnet"
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		network:      network,
		httpDo:       doer,
		pollInterval: defaultPollInterval,
		signers:      make(map[string]*sync.Mutex),
	}, nil
}

func (c *Client) Network() string {
	return c.network
}

func (c *Client) signerLock(tenantID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.signers[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		c.signers[tenantID] = lock
	}
	return lock
}

type feeEstimateRequest struct {
	Operation string `json:"operation"`
	Network   string `json:"network"`
}

type feeEstimateResponse struct {
	Fee int64 `json:"fee"`
}

func (c *Client) estimateFee(ctx context.Context, operation string) (int64, error) {
	var out feeEstimateResponse
	err := c.postJSON(ctx, "/v1/fees/estimate", feeEstimateRequest{
		Operation: operation,
		Network:   c.network,
	}, &out)
	if err != nil {
		return 0, err
	}
	if out.Fee <= 0 {
		return 0, fmt.Errorf("%w: gateway returned fee %d", domain.ErrLedgerUnavailable, out.Fee)
	}
	return out.Fee + out.Fee*feeMarginPercent/100, nil
}

type issueRequest struct {
	CertificateID      string `json:"certificate_id"`
	TenantID           string `json:"tenant_id"`
	OrganizationName   string `json:"organization_name"`
	StandardNumber     string `json:"standard_number"`
	ExpiryEpochSeconds int64  `json:"expiry_epoch_seconds"`
	ContentHash        string `json:"content_hash"`
	AuxHash            string `json:"aux_hash,omitempty"`
	MaxFee             int64  `json:"max_fee"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
}

func (c *Client) Issue(ctx context.Context, reg domain.CertificateRegistration) (string, error) {
	if reg.CertificateID == "" || reg.TenantID == "" {
		return "", errors.New("certificate id and tenant id are required")
	}
	if reg.ContentHash == "" {
		return "", errors.New("content hash is required")
	}
	maxFee, err := c.estimateFee(ctx, "issue_certificate")
	if err != nil {
		return "", err
	}

	lock := c.signerLock(reg.TenantID)
	lock.Lock()
	defer lock.Unlock()

	var out submitResponse
	err = c.postJSON(ctx, "/v1/registry/certificates", issueRequest{
		CertificateID:      reg.CertificateID,
		TenantID:           reg.TenantID,
		OrganizationName:   reg.OrganizationName,
		StandardNumber:     reg.StandardNumber,
		ExpiryEpochSeconds: reg.ExpiryEpochSeconds,
		ContentHash:        reg.ContentHash,
		AuxHash:            reg.AuxHash,
		MaxFee:             maxFee,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("%w: gateway returned no tx hash", domain.ErrLedgerUnavailable)
	}
	return out.TxHash, nil
}

type txStatusResponse struct {
	Status      string `json:"status"`
	BlockNumber int64  `json:"block_number"`
	ConfirmedAt string `json:"confirmed_at"`
	Detail      string `json:"detail"`
}

// AwaitConfirmation polls the gateway until the transaction is included.
// Timing out is not exceptional: the caller re-polls later, it must not
// resubmit.
func (c *Client) AwaitConfirmation(ctx context.Context, txHash string, timeout time.Duration) (domain.Confirmation, error) {
	if txHash == "" {
		return domain.Confirmation{}, errors.New("tx hash is required")
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.txStatus(ctx, txHash)
		if err == nil {
			switch status.Status {
			case "confirmed":
				confirmedAt, parseErr := time.Parse(time.RFC3339, status.ConfirmedAt)
				if parseErr != nil {
					confirmedAt = time.Now().UTC()
				}
				return domain.Confirmation{
					TxHash:      txHash,
					BlockNumber: status.BlockNumber,
					ConfirmedAt: confirmedAt,
				}, nil
			case "reverted", "failed":
				if status.Detail != "" {
					return domain.Confirmation{}, fmt.Errorf("%w: %s", domain.ErrLedgerReverted, status.Detail)
				}
				return domain.Confirmation{}, domain.ErrLedgerReverted
			}
		} else if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrLedgerUnavailable) {
			return domain.Confirmation{}, err
		}

		if time.Now().After(deadline) {
			return domain.Confirmation{}, domain.ErrConfirmationTimeout
		}
		select {
		case <-ctx.Done():
			return domain.Confirmation{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) txStatus(ctx context.Context, txHash string) (*txStatusResponse, error) {
	var out txStatusResponse
	if err := c.getJSON(ctx, "/v1/transactions/"+txHash, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type updateStatusRequest struct {
	StatusCode int   `json:"status_code"`
	MaxFee     int64 `json:"max_fee"`
}

func (c *Client) UpdateStatus(ctx context.Context, certificateID string, status domain.Status) (string, error) {
	code, err := status.LedgerCode()
	if err != nil {
		return "", err
	}
	maxFee, err := c.estimateFee(ctx, "update_certificate_status")
	if err != nil {
		return "", err
	}

	lock := c.signerLock(tenantOf(certificateID))
	lock.Lock()
	defer lock.Unlock()

	var out submitResponse
	err = c.postJSON(ctx, "/v1/registry/certificates/"+url.PathEscape(certificateID)+"/status", updateStatusRequest{
		StatusCode: code,
		MaxFee:     maxFee,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("%w: gateway returned no tx hash", domain.ErrLedgerUnavailable)
	}
	return out.TxHash, nil
}

type ledgerRecordResponse struct {
	CertificateID      string `json:"certificate_id"`
	OrganizationName   string `json:"organization_name"`
	StandardNumber     string `json:"standard_number"`
	ExpiryEpochSeconds int64  `json:"expiry_epoch_seconds"`
	ContentHash        string `json:"content_hash"`
	AuxHash            string `json:"aux_hash"`
	StatusCode         int    `json:"status_code"`
	IssuerBodyCode     string `json:"issuer_body_code"`
	RegisteredAt       string `json:"registered_at"`
}

func (c *Client) GetCertificate(ctx context.Context, certificateID string) (*domain.LedgerRecord, error) {
	var out ledgerRecordResponse
	// Certificate ids embed a '#', which must not read as a URL fragment.
	if err := c.getJSON(ctx, "/v1/registry/certificates/"+url.PathEscape(certificateID), &out); err != nil {
		return nil, err
	}
	registeredAt, err := time.Parse(time.RFC3339, out.RegisteredAt)
	if err != nil {
		registeredAt = time.Time{}
	}
	return &domain.LedgerRecord{
		CertificateID:      out.CertificateID,
		OrganizationName:   out.OrganizationName,
		StandardNumber:     out.StandardNumber,
		ExpiryEpochSeconds: out.ExpiryEpochSeconds,
		ContentHash:        out.ContentHash,
		AuxHash:            out.AuxHash,
		StatusCode:         out.StatusCode,
		IssuerBodyCode:     out.IssuerBodyCode,
		RegisteredAt:       registeredAt,
	}, nil
}

type validResponse struct {
	Valid bool `json:"valid"`
}

func (c *Client) IsValid(ctx context.Context, certificateID string) (bool, error) {
	var out validResponse
	err := c.getJSON(ctx, "/v1/registry/certificates/"+url.PathEscape(certificateID)+"/valid", &out)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

type registerBodyRequest struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	MaxFee int64  `json:"max_fee"`
}

// EnsureBodyRegistered checks registration against the ledger itself, so
// multiple process instances agree without shared in-process state.
func (c *Client) EnsureBodyRegistered(ctx context.Context, body domain.CertificationBody) error {
	if body.Code == "" {
		return errors.New("certification body code is required")
	}
	err := c.getJSON(ctx, "/v1/registry/bodies/"+body.Code, &struct{}{})
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	maxFee, err := c.estimateFee(ctx, "register_certification_body")
	if err != nil {
		return err
	}
	lock := c.signerLock(body.Code)
	lock.Lock()
	defer lock.Unlock()

	var out submitResponse
	err = c.postJSON(ctx, "/v1/registry/bodies", registerBodyRequest{
		Code:   body.Code,
		Name:   body.Name,
		MaxFee: maxFee,
	}, &out)
	// A concurrent instance may have registered between the read and the
	// write; the gateway reports that as a conflict, which is fine.
	if errors.Is(err, domain.ErrLedgerReverted) {
		return nil
	}
	return err
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpDo(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrLedgerReverted, strings.TrimSpace(string(body)))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", domain.ErrLedgerUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("ledger gateway rejected request: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

func tenantOf(certificateID string) string {
	if i := strings.IndexByte(certificateID, '#'); i > 0 {
		return certificateID[:i]
	}
	return certificateID
}

var _ domain.LedgerClient = (*Client)(nil)
