package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	"github.com/gin-gonic/gin"
)

const tenantHeader = "X-Tenant-ID"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

type issueRequest struct {
	domain.CertificateInput
	// CertificateNumber retries a prior issuance under the same number.
	CertificateNumber string `json:"certificate_number,omitempty"`
}

type issueResponse struct {
	CertificateID     string        `json:"certificate_id"`
	CertificateNumber string        `json:"certificate_number"`
	Status            domain.Status `json:"status"`
	LedgerTxHash      string        `json:"ledger_tx_hash,omitempty"`
	DocumentHash      string        `json:"document_hash,omitempty"`
	MerkleRoot        string        `json:"merkle_root,omitempty"`
	VerificationCode  string        `json:"verification_code,omitempty"`
	TransactionID     string        `json:"transaction_id,omitempty"`
	Confirmed         bool          `json:"confirmed"`
}

type issueBatchRequest struct {
	Certificates []domain.CertificateInput `json:"certificates"`
}

type issueBatchResponse struct {
	MerkleRoot   string           `json:"merkle_root"`
	Certificates []batchItemEntry `json:"certificates"`
}

type batchItemEntry struct {
	issueResponse
	Error string `json:"error,omitempty"`
}

type statusChangeRequest struct {
	Status    domain.Status `json:"status"`
	Reason    string        `json:"reason"`
	ActorRole string        `json:"actor_role"`
	ActorID   string        `json:"actor_id"`
}

type statusChangeResponse struct {
	CertificateID string        `json:"certificate_id"`
	Status        domain.Status `json:"status"`
	LedgerTxHash  string        `json:"ledger_tx_hash"`
	TransactionID string        `json:"transaction_id"`
	Confirmed     bool          `json:"confirmed"`
}

type verifyRequest struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
}

type listResponse struct {
	Certificates  []domain.CertificateView `json:"certificates"`
	NextPageToken string                   `json:"next_page_token,omitempty"`
}

type transactionEntry struct {
	ID            string `json:"id"`
	OperationType string `json:"operation_type"`
	Network       string `json:"network"`
	Hash          string `json:"hash,omitempty"`
	Status        string `json:"status"`
	BlockNumber   int64  `json:"block_number,omitempty"`
	ErrorDetail   string `json:"error_detail,omitempty"`
	CreatedAt     string `json:"created_at"`
	ConfirmedAt   string `json:"confirmed_at,omitempty"`
}

func (s *Server) handleIssue(c *gin.Context) {
	tenantID := c.GetHeader(tenantHeader)
	if tenantID == "" {
		writeErrorCode(c, http.StatusBadRequest, "TENANT_REQUIRED", "X-Tenant-ID header is required")
		return
	}
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}

	resp, err := s.issueUC.Execute(c.Request.Context(), usecase.IssueRequest{
		TenantID:          tenantID,
		Input:             req.CertificateInput,
		CertificateNumber: req.CertificateNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if !resp.Confirmed {
		// Submitted and recorded but not yet included in the ledger.
		status = http.StatusAccepted
	}
	c.JSON(status, issueResponseFrom(resp.Certificate, resp.TransactionID, resp.Confirmed))
}

func (s *Server) handleIssueBatch(c *gin.Context) {
	tenantID := c.GetHeader(tenantHeader)
	if tenantID == "" {
		writeErrorCode(c, http.StatusBadRequest, "TENANT_REQUIRED", "X-Tenant-ID header is required")
		return
	}
	var req issueBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}

	resp, err := s.issueUC.ExecuteBatch(c.Request.Context(), usecase.IssueBatchRequest{
		TenantID: tenantID,
		Inputs:   req.Certificates,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	out := issueBatchResponse{MerkleRoot: resp.MerkleRoot}
	allConfirmed := true
	for _, item := range resp.Items {
		entry := batchItemEntry{
			issueResponse: issueResponseFrom(item.Certificate, item.TransactionID, item.Confirmed),
			Error:         item.Error,
		}
		if !item.Confirmed {
			allConfirmed = false
		}
		out.Certificates = append(out.Certificates, entry)
	}
	status := http.StatusCreated
	if !allConfirmed {
		status = http.StatusAccepted
	}
	c.JSON(status, out)
}

func (s *Server) handleList(c *gin.Context) {
	tenantID := c.GetHeader(tenantHeader)
	if tenantID == "" {
		writeErrorCode(c, http.StatusBadRequest, "TENANT_REQUIRED", "X-Tenant-ID header is required")
		return
	}

	pageSize := 0
	if raw := c.Query("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_PAGE_SIZE", "page_size must be a positive integer")
			return
		}
		pageSize = parsed
	}

	page, err := s.index.Query(c.Request.Context(), domain.IndexQuery{
		TenantID:         tenantID,
		OrganizationName: c.Query("organization"),
		StandardNumber:   c.Query("standard"),
		Status:           domain.Status(c.Query("status")),
		PublicOnly:       c.Query("public") == "true",
		PageSize:         pageSize,
		PageToken:        c.Query("page_token"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{
		Certificates:  page.Items,
		NextPageToken: page.NextPageToken,
	})
}

func (s *Server) handleGet(c *gin.Context) {
	tenantID := c.GetHeader(tenantHeader)
	if tenantID == "" {
		writeErrorCode(c, http.StatusBadRequest, "TENANT_REQUIRED", "X-Tenant-ID header is required")
		return
	}
	view, err := s.index.GetByNumber(c.Request.Context(), tenantID, strings.ToUpper(c.Param("number")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleTransactions(c *gin.Context) {
	tenantID := c.GetHeader(tenantHeader)
	if tenantID == "" {
		writeErrorCode(c, http.StatusBadRequest, "TENANT_REQUIRED", "X-Tenant-ID header is required")
		return
	}
	certificateID := domain.CertificateID(tenantID, strings.ToUpper(c.Param("number")))
	txs, err := s.recorder.ListByCertificate(c.Request.Context(), tenantID, certificateID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]transactionEntry, 0, len(txs))
	for _, tx := range txs {
		entry := transactionEntry{
			ID:            tx.ID,
			OperationType: tx.OperationType,
			Network:       tx.Network,
			Hash:          tx.Hash,
			Status:        tx.Status,
			BlockNumber:   tx.BlockNumber,
			ErrorDetail:   tx.ErrorDetail,
			CreatedAt:     tx.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if tx.ConfirmedAt != nil {
			entry.ConfirmedAt = tx.ConfirmedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (s *Server) handleStatusChange(c *gin.Context) {
	tenantID := c.GetHeader(tenantHeader)
	if tenantID == "" {
		writeErrorCode(c, http.StatusBadRequest, "TENANT_REQUIRED", "X-Tenant-ID header is required")
		return
	}
	var req statusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}

	resp, err := s.statusUC.Execute(c.Request.Context(), usecase.StatusChangeRequest{
		TenantID:          tenantID,
		CertificateNumber: c.Param("number"),
		To:                req.Status,
		Reason:            req.Reason,
		ActorRole:         req.ActorRole,
		ActorID:           req.ActorID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if !resp.Confirmed {
		status = http.StatusAccepted
	}
	c.JSON(status, statusChangeResponse{
		CertificateID: resp.CertificateID,
		Status:        resp.Status,
		LedgerTxHash:  resp.TxHash,
		TransactionID: resp.TransactionID,
		Confirmed:     resp.Confirmed,
	})
}

func (s *Server) handleVerify(c *gin.Context) {
	if !s.enforceRateLimit(c) {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = c.GetHeader(tenantHeader)
	}

	result, err := s.verifyUC.Execute(c.Request.Context(), usecase.VerifyRequest{
		TenantID:       tenantID,
		Identifier:     req.Identifier,
		IdentifierType: req.Type,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func issueResponseFrom(cert domain.Certificate, txID string, confirmed bool) issueResponse {
	return issueResponse{
		CertificateID:     cert.ID,
		CertificateNumber: cert.CertificateNumber,
		Status:            cert.Status,
		LedgerTxHash:      cert.LedgerTxHash,
		DocumentHash:      cert.DocumentHash,
		MerkleRoot:        cert.MerkleRoot,
		VerificationCode:  cert.VerificationCode,
		TransactionID:     txID,
		Confirmed:         confirmed,
	}
}

func writeError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    "INVALID_INPUT",
			Message: err.Error(),
			Field:   validationErr.Field,
		})
		return
	}

	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrDocumentNotFound):
		status, code = http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrTransitionDenied):
		status, code = http.StatusForbidden, "TRANSITION_DENIED"
	case errors.Is(err, domain.ErrDuplicateCertificate):
		status, code = http.StatusConflict, "DUPLICATE_CERTIFICATE"
	case errors.Is(err, domain.ErrLedgerReverted):
		status, code = http.StatusConflict, "LEDGER_REVERTED"
	case errors.Is(err, domain.ErrArchiveUnavailable):
		status, code = http.StatusBadGateway, "ARCHIVE_UNAVAILABLE"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		status, code = http.StatusBadGateway, "LEDGER_UNAVAILABLE"
	case errors.Is(err, domain.ErrConfirmationTimeout):
		status, code = http.StatusAccepted, "CONFIRMATION_PENDING"
	}

	resp := errorResponse{Code: code, Message: err.Error()}
	var issuanceErr *domain.IssuanceError
	if errors.As(err, &issuanceErr) {
		resp.Stage = issuanceErr.Stage
	}
	c.JSON(status, resp)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}
