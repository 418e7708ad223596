package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"certledger/internal/domain"
	"certledger/internal/infra/merkle"
)

func testInput(now time.Time, orgName string) domain.CertificateInput {
	return domain.CertificateInput{
		Organization: domain.Organization{
			Name:    orgName,
			Address: "1 Factory Rd",
			Email:   "quality@acme.example",
		},
		Standard: domain.Standard{
			Number: "ISO-9001",
			Title:  "Quality management systems",
		},
		Scope: domain.Scope{
			Description: "Design and production of widgets",
			Sites:       []string{"Plant A"},
		},
		IssuerName: "Example Certification Body",
		IssuerCode: "ECB-01",
		Audit: domain.AuditInfo{
			AuditDate: now.AddDate(0, -1, 0),
			Auditor:   "J. Auditor",
			AuditType: "initial",
		},
		ExpiryDate: now.AddDate(3, 0, 0),
		CreatedBy:  "tester",
	}
}

func newIssueUC(archiver *stubArchiver, ledger *stubLedger, recorder *stubRecorder, index *stubIndex) *IssueCertificate {
	return &IssueCertificate{
		Archiver:            archiver,
		Ledger:              ledger,
		Recorder:            recorder,
		Index:               index,
		Body:                domain.CertificationBody{Code: "ECB-01", Name: "Example Certification Body"},
		Network:             "testnet",
		ConfirmationTimeout: time.Second,
		Now:                 func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestIssueConfirmed(t *testing.T) {
	confirmedAt := time.Date(2024, 6, 1, 12, 0, 30, 0, time.UTC)
	archiver := &stubArchiver{}
	ledger := &stubLedger{
		issueTx: "0xabc",
		conf:    domain.Confirmation{BlockNumber: 7, ConfirmedAt: confirmedAt},
	}
	recorder := &stubRecorder{}
	index := &stubIndex{}
	uc := newIssueUC(archiver, ledger, recorder, index)

	resp, err := uc.Execute(context.Background(), IssueRequest{
		TenantID: "acme",
		Input:    testInput(uc.Now(), "Acme Manufacturing"),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Confirmed {
		t.Fatal("issuance should report confirmed")
	}
	if resp.Certificate.Status != domain.StatusValid {
		t.Fatalf("certificate status %s, want valid", resp.Certificate.Status)
	}
	if resp.Certificate.LedgerTxHash != "0xabc" {
		t.Fatalf("tx hash %q not carried onto the certificate", resp.Certificate.LedgerTxHash)
	}
	if resp.Certificate.DocumentHash == "" {
		t.Fatal("archival must set the document hash before submission")
	}
	if ledger.ensureCalls != 1 {
		t.Fatalf("body registration checked %d times, want 1", ledger.ensureCalls)
	}

	if len(recorder.recorded) != 1 {
		t.Fatalf("expected one transaction record, got %d", len(recorder.recorded))
	}
	record := recorder.recorded[0]
	if record.Status != domain.TxStatusPending || record.OperationType != domain.OpCreateCertificate {
		t.Fatalf("unexpected record %+v", record)
	}
	if len(record.Data) == 0 {
		t.Fatal("record must carry a snapshot for the confirmation worker")
	}
	outcome, ok := recorder.reconciled[record.ID]
	if !ok {
		t.Fatal("confirmed transaction was not reconciled")
	}
	if outcome.Status != domain.TxStatusConfirmed || outcome.BlockNumber != 7 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	if len(index.upserts) != 1 {
		t.Fatalf("expected one index upsert, got %d", len(index.upserts))
	}
	if index.upserts[0].Status != domain.StatusValid {
		t.Fatalf("index upsert status %s, want valid", index.upserts[0].Status)
	}
}

func TestIssueValidationFailure(t *testing.T) {
	uc := newIssueUC(&stubArchiver{}, &stubLedger{}, &stubRecorder{}, &stubIndex{})
	input := testInput(uc.Now(), "")

	_, err := uc.Execute(context.Background(), IssueRequest{TenantID: "acme", Input: input})
	var issErr *domain.IssuanceError
	if !errors.As(err, &issErr) || issErr.Stage != domain.StageValidate {
		t.Fatalf("expected validation stage failure, got %v", err)
	}
}

func TestIssueArchiveFailureAborts(t *testing.T) {
	archiver := &stubArchiver{archiveErr: domain.ErrArchiveUnavailable}
	ledger := &stubLedger{issueTx: "0xabc"}
	recorder := &stubRecorder{}
	uc := newIssueUC(archiver, ledger, recorder, &stubIndex{})

	_, err := uc.Execute(context.Background(), IssueRequest{
		TenantID: "acme",
		Input:    testInput(uc.Now(), "Acme Manufacturing"),
	})
	var issErr *domain.IssuanceError
	if !errors.As(err, &issErr) || issErr.Stage != domain.StageArchive {
		t.Fatalf("expected archive stage failure, got %v", err)
	}
	if !errors.Is(err, domain.ErrArchiveUnavailable) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if len(ledger.registrations) != 0 {
		t.Fatal("nothing may reach the ledger when archival fails")
	}
	if len(recorder.recorded) != 0 {
		t.Fatal("no transaction row without a submission")
	}
}

func TestIssueSubmitFailureRecordsAttempt(t *testing.T) {
	ledger := &stubLedger{issueErr: domain.ErrLedgerUnavailable}
	recorder := &stubRecorder{}
	index := &stubIndex{}
	uc := newIssueUC(&stubArchiver{}, ledger, recorder, index)

	_, err := uc.Execute(context.Background(), IssueRequest{
		TenantID: "acme",
		Input:    testInput(uc.Now(), "Acme Manufacturing"),
	})
	var issErr *domain.IssuanceError
	if !errors.As(err, &issErr) || issErr.Stage != domain.StageSubmit {
		t.Fatalf("expected submit stage failure, got %v", err)
	}
	if len(recorder.recorded) != 1 {
		t.Fatalf("rejected submission should leave an audit row, got %d", len(recorder.recorded))
	}
	if recorder.recorded[0].Status != domain.TxStatusFailed || recorder.recorded[0].ErrorDetail == "" {
		t.Fatalf("unexpected audit row %+v", recorder.recorded[0])
	}
	if len(index.upserts) != 0 {
		t.Fatal("failed submission must not reach the index")
	}
}

func TestIssueRevertedReconcilesFailed(t *testing.T) {
	ledger := &stubLedger{issueTx: "0xabc", confirmErr: domain.ErrLedgerReverted}
	recorder := &stubRecorder{}
	index := &stubIndex{}
	uc := newIssueUC(&stubArchiver{}, ledger, recorder, index)

	_, err := uc.Execute(context.Background(), IssueRequest{
		TenantID: "acme",
		Input:    testInput(uc.Now(), "Acme Manufacturing"),
	})
	if !errors.Is(err, domain.ErrLedgerReverted) {
		t.Fatalf("expected ErrLedgerReverted, got %v", err)
	}
	var issErr *domain.IssuanceError
	if !errors.As(err, &issErr) || issErr.Stage != domain.StageConfirm {
		t.Fatalf("expected confirm stage failure, got %v", err)
	}
	if len(recorder.recorded) != 1 {
		t.Fatalf("expected one transaction record, got %d", len(recorder.recorded))
	}
	outcome := recorder.reconciled[recorder.recorded[0].ID]
	if outcome.Status != domain.TxStatusFailed {
		t.Fatalf("reverted transaction must reconcile as failed, got %+v", outcome)
	}
	if len(index.upserts) != 0 {
		t.Fatal("reverted issuance must not reach the index")
	}
}

func TestIssueTimeoutLeavesPending(t *testing.T) {
	ledger := &stubLedger{issueTx: "0xabc", confirmErr: domain.ErrConfirmationTimeout}
	recorder := &stubRecorder{}
	index := &stubIndex{}
	uc := newIssueUC(&stubArchiver{}, ledger, recorder, index)

	resp, err := uc.Execute(context.Background(), IssueRequest{
		TenantID: "acme",
		Input:    testInput(uc.Now(), "Acme Manufacturing"),
	})
	if err != nil {
		t.Fatalf("timeout is not an error: %v", err)
	}
	if resp.Confirmed {
		t.Fatal("timed out issuance must not report confirmed")
	}
	if resp.Certificate.Status != domain.StatusPending {
		t.Fatalf("certificate status %s, want pending", resp.Certificate.Status)
	}
	if len(index.upserts) != 0 {
		t.Fatal("index writes only after confirmation")
	}
	if len(recorder.reconciled) != 0 {
		t.Fatal("pending transaction stays pending for the worker")
	}
}

// publishedView is the state an earlier attempt put on the ledger: code,
// document hash, and dates are fixed from that point on.
func publishedView() domain.CertificateView {
	return domain.CertificateView{
		ID:                 "acme#ISO-9001-1700000000-AAAAAA",
		TenantID:           "acme",
		CertificateNumber:  "ISO-9001-1700000000-AAAAAA",
		OrganizationName:   "Acme Manufacturing",
		StandardNumber:     "ISO-9001",
		Status:             domain.StatusPending,
		IssuedDate:         time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:         time.Date(2027, 5, 1, 0, 0, 0, 0, time.UTC),
		DocumentHash:       "51f8bbf43a0dd9f1a3c67e2b8840c5127a6be09e4d3351fa08c27d9be5a41c7e",
		VerificationCode:   "ORIGCODE01",
		PubliclySearchable: true,
	}
}

func TestIssueResumesPendingAttempt(t *testing.T) {
	confirmedAt := time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC)
	published := publishedView()
	archiver := &stubArchiver{}
	ledger := &stubLedger{conf: domain.Confirmation{BlockNumber: 9, ConfirmedAt: confirmedAt}}
	recorder := &stubRecorder{
		prior: &domain.LedgerTransaction{
			ID:            "tx-1",
			Hash:          "0xold",
			Status:        domain.TxStatusPending,
			OperationType: domain.OpCreateCertificate,
			Data:          createSnapshot(published),
		},
	}
	index := &stubIndex{}
	uc := newIssueUC(archiver, ledger, recorder, index)

	resp, err := uc.Execute(context.Background(), IssueRequest{
		TenantID:          "acme",
		Input:             testInput(uc.Now(), "Acme Manufacturing"),
		CertificateNumber: "ISO-9001-1700000000-AAAAAA",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ledger.registrations) != 0 {
		t.Fatal("resuming a pending attempt must not submit again")
	}
	if len(archiver.archived) != 0 {
		t.Fatal("resuming a pending attempt must not archive a new document")
	}
	if resp.TransactionID != "tx-1" {
		t.Fatalf("transaction id %q, want the prior attempt", resp.TransactionID)
	}
	if len(ledger.awaitedHashes) != 1 || ledger.awaitedHashes[0] != "0xold" {
		t.Fatalf("should await the prior tx hash, awaited %v", ledger.awaitedHashes)
	}
	if !resp.Confirmed || resp.Certificate.Status != domain.StatusValid {
		t.Fatalf("resumed confirmation not applied: %+v", resp)
	}
	if resp.Certificate.VerificationCode != published.VerificationCode {
		t.Fatalf("verification code %q, want the published one", resp.Certificate.VerificationCode)
	}
	if resp.Certificate.DocumentHash != published.DocumentHash {
		t.Fatalf("document hash %q, want the published one", resp.Certificate.DocumentHash)
	}
	if len(index.upserts) != 1 {
		t.Fatalf("expected one index upsert, got %d", len(index.upserts))
	}
	if index.upserts[0].VerificationCode != published.VerificationCode {
		t.Fatal("index upsert must carry the published verification code")
	}
}

func TestIssueShortCircuitsConfirmedAttempt(t *testing.T) {
	published := publishedView()
	archiver := &stubArchiver{}
	ledger := &stubLedger{}
	recorder := &stubRecorder{
		prior: &domain.LedgerTransaction{
			ID:            "tx-1",
			Hash:          "0xdone",
			Status:        domain.TxStatusConfirmed,
			OperationType: domain.OpCreateCertificate,
			Data:          createSnapshot(published),
		},
	}
	index := &stubIndex{}
	uc := newIssueUC(archiver, ledger, recorder, index)

	resp, err := uc.Execute(context.Background(), IssueRequest{
		TenantID:          "acme",
		Input:             testInput(uc.Now(), "Acme Manufacturing"),
		CertificateNumber: "ISO-9001-1700000000-AAAAAA",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ledger.registrations) != 0 || len(ledger.awaitedHashes) != 0 {
		t.Fatal("already confirmed attempt must not touch the ledger")
	}
	if len(archiver.archived) != 0 {
		t.Fatal("already confirmed attempt must not archive a new document")
	}
	if !resp.Confirmed || resp.Certificate.LedgerTxHash != "0xdone" {
		t.Fatalf("confirmed attempt not replayed: %+v", resp)
	}
	if resp.Certificate.Status != domain.StatusValid {
		t.Fatalf("certificate status %s, want valid", resp.Certificate.Status)
	}
	if resp.Certificate.VerificationCode != published.VerificationCode {
		t.Fatalf("verification code %q, want the published one", resp.Certificate.VerificationCode)
	}
	if len(index.upserts) != 0 {
		t.Fatal("the index already mirrors a confirmed certificate, nothing to rewrite")
	}
}

func TestIssueRetryKeepsPublishedCodeAndDocument(t *testing.T) {
	confirmedAt := time.Date(2024, 6, 1, 12, 0, 30, 0, time.UTC)
	archiver := &stubArchiver{}
	ledger := &stubLedger{
		issueTx: "0xabc",
		conf:    domain.Confirmation{BlockNumber: 7, ConfirmedAt: confirmedAt},
	}
	recorder := &stubRecorder{}
	index := &stubIndex{}
	uc := newIssueUC(archiver, ledger, recorder, index)

	first, err := uc.Execute(context.Background(), IssueRequest{
		TenantID: "acme",
		Input:    testInput(uc.Now(), "Acme Manufacturing"),
	})
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}

	prior := recorder.recorded[0]
	prior.Status = domain.TxStatusConfirmed
	recorder.prior = &prior

	retry, err := uc.Execute(context.Background(), IssueRequest{
		TenantID:          "acme",
		Input:             testInput(uc.Now(), "Acme Manufacturing"),
		CertificateNumber: first.Certificate.CertificateNumber,
	})
	if err != nil {
		t.Fatalf("retry Execute: %v", err)
	}
	if retry.Certificate.VerificationCode != first.Certificate.VerificationCode {
		t.Fatalf("retry rotated the verification code: %q vs %q",
			retry.Certificate.VerificationCode, first.Certificate.VerificationCode)
	}
	if retry.Certificate.DocumentHash != first.Certificate.DocumentHash {
		t.Fatalf("retry produced a new document hash: %q vs %q",
			retry.Certificate.DocumentHash, first.Certificate.DocumentHash)
	}
	if len(archiver.archived) != 1 {
		t.Fatalf("retry must not archive a second document, archived %d", len(archiver.archived))
	}
	if len(ledger.registrations) != 1 {
		t.Fatalf("retry must not submit a second ledger entry, submitted %d", len(ledger.registrations))
	}
	if len(index.upserts) != 1 {
		t.Fatalf("retry must not rewrite the index row, upserts %d", len(index.upserts))
	}
}

func TestIssueRetryFallsBackToIndexRow(t *testing.T) {
	published := publishedView()
	recorder := &stubRecorder{
		// A prior row without a snapshot, as left by a recorder write that
		// failed after the ledger submission succeeded.
		prior: &domain.LedgerTransaction{
			ID:            "tx-1",
			Hash:          "0xdone",
			Status:        domain.TxStatusConfirmed,
			OperationType: domain.OpCreateCertificate,
		},
	}
	index := &stubIndex{view: &published}
	uc := newIssueUC(&stubArchiver{}, &stubLedger{}, recorder, index)

	resp, err := uc.Execute(context.Background(), IssueRequest{
		TenantID:          "acme",
		Input:             testInput(uc.Now(), "Acme Manufacturing"),
		CertificateNumber: "ISO-9001-1700000000-AAAAAA",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Certificate.VerificationCode != published.VerificationCode {
		t.Fatalf("verification code %q, want the index row's", resp.Certificate.VerificationCode)
	}
	if index.numberLookups != 1 {
		t.Fatalf("expected one index lookup, got %d", index.numberLookups)
	}

	// With neither snapshot nor index row the published values cannot be
	// reproduced and the retry must fail instead of inventing new ones.
	uc = newIssueUC(&stubArchiver{}, &stubLedger{}, recorder, &stubIndex{})
	_, err = uc.Execute(context.Background(), IssueRequest{
		TenantID:          "acme",
		Input:             testInput(uc.Now(), "Acme Manufacturing"),
		CertificateNumber: "ISO-9001-1700000000-AAAAAA",
	})
	var issErr *domain.IssuanceError
	if !errors.As(err, &issErr) || issErr.Stage != domain.StageSubmit {
		t.Fatalf("expected submit stage failure, got %v", err)
	}
}

func TestBatchSharesMerkleRoot(t *testing.T) {
	confirmedAt := time.Date(2024, 6, 1, 12, 0, 30, 0, time.UTC)
	archiver := &stubArchiver{}
	ledger := &stubLedger{issueTx: "0xabc", conf: domain.Confirmation{ConfirmedAt: confirmedAt}}
	recorder := &stubRecorder{}
	uc := newIssueUC(archiver, ledger, recorder, &stubIndex{})

	resp, err := uc.ExecuteBatch(context.Background(), IssueBatchRequest{
		TenantID: "acme",
		Inputs: []domain.CertificateInput{
			testInput(uc.Now(), "Acme Manufacturing"),
			testInput(uc.Now(), "Beta Industries"),
		},
	})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected two items, got %d", len(resp.Items))
	}

	docHashes := make([]string, len(resp.Items))
	for i, item := range resp.Items {
		if !item.Confirmed || item.Error != "" {
			t.Fatalf("item %d not confirmed: %+v", i, item)
		}
		docHashes[i] = item.Certificate.DocumentHash
	}
	wantRoot, err := merkle.RootHex(docHashes)
	if err != nil {
		t.Fatalf("RootHex: %v", err)
	}
	if resp.MerkleRoot != wantRoot {
		t.Fatalf("merkle root %s, want %s", resp.MerkleRoot, wantRoot)
	}

	if len(ledger.registrations) != 2 {
		t.Fatalf("expected two submissions, got %d", len(ledger.registrations))
	}
	for i, reg := range ledger.registrations {
		if reg.AuxHash != wantRoot {
			t.Fatalf("submission %d aux hash %q, want the batch root", i, reg.AuxHash)
		}
	}
	for i, item := range resp.Items {
		if item.Certificate.MerkleRoot != wantRoot {
			t.Fatalf("item %d certificate does not carry the batch root", i)
		}
	}
}

func TestBatchRejectsAnyInvalidInput(t *testing.T) {
	archiver := &stubArchiver{}
	ledger := &stubLedger{issueTx: "0xabc"}
	uc := newIssueUC(archiver, ledger, &stubRecorder{}, &stubIndex{})

	_, err := uc.ExecuteBatch(context.Background(), IssueBatchRequest{
		TenantID: "acme",
		Inputs: []domain.CertificateInput{
			testInput(uc.Now(), "Acme Manufacturing"),
			testInput(uc.Now(), ""),
		},
	})
	var issErr *domain.IssuanceError
	if !errors.As(err, &issErr) || issErr.Stage != domain.StageValidate {
		t.Fatalf("expected validation stage failure, got %v", err)
	}
	if len(archiver.archived) != 0 {
		t.Fatal("an invalid batch must have no side effects")
	}
	if len(ledger.registrations) != 0 {
		t.Fatal("an invalid batch must not reach the ledger")
	}

	if _, err := uc.ExecuteBatch(context.Background(), IssueBatchRequest{TenantID: "acme"}); err == nil {
		t.Fatal("empty batch must be rejected")
	}
}
