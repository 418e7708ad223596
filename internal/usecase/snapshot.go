package usecase

import (
	"encoding/json"

	"certledger/internal/domain"
)

// txSnapshot is the Data payload written with every ledger transaction
// record. It carries enough to finish the operation's side effects after a
// process restart: the confirmation worker replays the index write from it.
type txSnapshot struct {
	Operation     string                  `json:"operation"`
	CertificateID string                  `json:"certificate_id"`
	View          *domain.CertificateView `json:"view,omitempty"`
	Status        domain.Status           `json:"status,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
}

func createSnapshot(view domain.CertificateView) json.RawMessage {
	raw, err := json.Marshal(txSnapshot{
		Operation:     domain.OpCreateCertificate,
		CertificateID: view.ID,
		View:          &view,
	})
	if err != nil {
		return nil
	}
	return raw
}

func statusSnapshot(certificateID string, status domain.Status, reason string) json.RawMessage {
	raw, err := json.Marshal(txSnapshot{
		Operation:     domain.OpUpdateStatus,
		CertificateID: certificateID,
		Status:        status,
		Reason:        reason,
	})
	if err != nil {
		return nil
	}
	return raw
}

func decodeSnapshot(raw json.RawMessage) (*txSnapshot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var snap txSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
