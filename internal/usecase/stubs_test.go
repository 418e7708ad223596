package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"certledger/internal/domain"
)

func stubDocHash(cert domain.Certificate) string {
	sum := sha256.Sum256([]byte(cert.ID))
	return hex.EncodeToString(sum[:])
}

type stubArchiver struct {
	archiveErr error
	doc        *domain.ArchivedDocument
	fetchErr   error

	archived []domain.Certificate
}

func (s *stubArchiver) Archive(_ context.Context, cert domain.Certificate) (string, error) {
	if s.archiveErr != nil {
		return "", s.archiveErr
	}
	s.archived = append(s.archived, cert)
	return stubDocHash(cert), nil
}

func (s *stubArchiver) Fetch(_ context.Context, _ string) (*domain.ArchivedDocument, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.doc == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return s.doc, nil
}

type stubLedger struct {
	issueTx    string
	issueErr   error
	conf       domain.Confirmation
	confirmErr error
	updateTx   string
	updateErr  error
	record     *domain.LedgerRecord
	getErr     error
	ensureErr  error

	registrations []domain.CertificateRegistration
	updateCalls   int
	awaitedHashes []string
	ensureCalls   int
}

func (s *stubLedger) EnsureBodyRegistered(_ context.Context, _ domain.CertificationBody) error {
	s.ensureCalls++
	return s.ensureErr
}

func (s *stubLedger) Issue(_ context.Context, reg domain.CertificateRegistration) (string, error) {
	if s.issueErr != nil {
		return "", s.issueErr
	}
	s.registrations = append(s.registrations, reg)
	return s.issueTx, nil
}

func (s *stubLedger) AwaitConfirmation(_ context.Context, txHash string, _ time.Duration) (domain.Confirmation, error) {
	s.awaitedHashes = append(s.awaitedHashes, txHash)
	if s.confirmErr != nil {
		return domain.Confirmation{}, s.confirmErr
	}
	conf := s.conf
	if conf.TxHash == "" {
		conf.TxHash = txHash
	}
	return conf, nil
}

func (s *stubLedger) UpdateStatus(_ context.Context, _ string, _ domain.Status) (string, error) {
	s.updateCalls++
	if s.updateErr != nil {
		return "", s.updateErr
	}
	return s.updateTx, nil
}

func (s *stubLedger) GetCertificate(_ context.Context, _ string) (*domain.LedgerRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.record == nil {
		return nil, domain.ErrNotFound
	}
	return s.record, nil
}

func (s *stubLedger) IsValid(_ context.Context, _ string) (bool, error) {
	return s.record != nil && s.record.StatusCode == 0, nil
}

type stubRecorder struct {
	prior     *domain.LedgerTransaction
	priorErr  error
	recordErr error

	recorded   []domain.LedgerTransaction
	reconciled map[string]domain.TxOutcome
	pending    []domain.LedgerTransaction
}

func (s *stubRecorder) Record(_ context.Context, tx domain.LedgerTransaction) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, tx)
	return nil
}

func (s *stubRecorder) Reconcile(_ context.Context, txID string, outcome domain.TxOutcome) error {
	if s.reconciled == nil {
		s.reconciled = make(map[string]domain.TxOutcome)
	}
	s.reconciled[txID] = outcome
	return nil
}

func (s *stubRecorder) ListByCertificate(_ context.Context, _, _ string) ([]domain.LedgerTransaction, error) {
	return s.recorded, nil
}

func (s *stubRecorder) ListByStatus(_ context.Context, _ string, _ int) ([]domain.LedgerTransaction, error) {
	return s.pending, nil
}

func (s *stubRecorder) LatestForOperation(_ context.Context, _, _, _ string) (*domain.LedgerTransaction, error) {
	if s.priorErr != nil {
		return nil, s.priorErr
	}
	if s.prior == nil {
		return nil, domain.ErrNotFound
	}
	return s.prior, nil
}

type indexStatusUpdate struct {
	certificateID string
	status        domain.Status
	reason        string
	at            time.Time
}

type stubIndex struct {
	view      *domain.CertificateView
	getErr    error
	upsertErr error
	updateErr error

	upserts       []domain.CertificateView
	statusUpdates []indexStatusUpdate
	numberLookups int
	codeLookups   int
}

func (s *stubIndex) Upsert(_ context.Context, view domain.CertificateView) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, view)
	return nil
}

func (s *stubIndex) UpdateStatus(_ context.Context, certificateID string, status domain.Status, reason string, at time.Time) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.statusUpdates = append(s.statusUpdates, indexStatusUpdate{
		certificateID: certificateID,
		status:        status,
		reason:        reason,
		at:            at,
	})
	return nil
}

func (s *stubIndex) Query(_ context.Context, _ domain.IndexQuery) (domain.IndexPage, error) {
	return domain.IndexPage{}, nil
}

func (s *stubIndex) GetByNumber(_ context.Context, _, _ string) (*domain.CertificateView, error) {
	s.numberLookups++
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.view == nil {
		return nil, domain.ErrNotFound
	}
	return s.view, nil
}

func (s *stubIndex) GetByCode(_ context.Context, _ string) (*domain.CertificateView, error) {
	s.codeLookups++
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.view == nil {
		return nil, domain.ErrNotFound
	}
	return s.view, nil
}

type stubPolicy struct {
	decision domain.TransitionDecision
	err      error

	requests []domain.TransitionRequest
}

func (s *stubPolicy) Evaluate(_ context.Context, req domain.TransitionRequest) (domain.TransitionDecision, error) {
	s.requests = append(s.requests, req)
	return s.decision, s.err
}

type stubCache struct {
	store map[string]domain.VerificationResult
	puts  int
}

func (s *stubCache) Get(_ context.Context, key string) (*domain.VerificationResult, bool, error) {
	if result, ok := s.store[key]; ok {
		return &result, true, nil
	}
	return nil, false, nil
}

func (s *stubCache) Put(_ context.Context, key string, result domain.VerificationResult, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string]domain.VerificationResult)
	}
	s.store[key] = result
	s.puts++
	return nil
}

var (
	_ domain.DocumentArchiver    = (*stubArchiver)(nil)
	_ domain.LedgerClient        = (*stubLedger)(nil)
	_ domain.TransactionRecorder = (*stubRecorder)(nil)
	_ domain.CertificateIndex    = (*stubIndex)(nil)
	_ domain.TransitionPolicy    = (*stubPolicy)(nil)
	_ domain.VerificationCache   = (*stubCache)(nil)
)
