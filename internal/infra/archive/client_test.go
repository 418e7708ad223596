package archive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"certledger/internal/domain"
)

func TestArchiveRoundTrip(t *testing.T) {
	var stored []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/objects" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Document json.RawMessage   `json:"document"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode put request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Metadata["certificate_id"] == "" {
			t.Error("metadata should carry the certificate id")
		}
		stored = req.Document
		json.NewEncoder(w).Encode(map[string]string{
			"content_hash": DocumentHash(req.Document),
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	cert := sampleCertificate()
	hash, err := client.Archive(context.Background(), cert)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	document, err := BuildDocument(cert)
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	if hash != DocumentHash(document) {
		t.Fatalf("returned hash %s does not match document hash", hash)
	}
	if string(stored) != string(document) {
		t.Fatal("stored document differs from canonical form")
	}
}

func TestArchiveRejectsHashDisagreement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"content_hash": "0000000000000000"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Archive(context.Background(), sampleCertificate()); err == nil {
		t.Fatal("hash disagreement must fail, never be papered over")
	}
}

func TestArchiveSurfacesStoreFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Archive(context.Background(), sampleCertificate())
	if !errors.Is(err, domain.ErrArchiveUnavailable) {
		t.Fatalf("expected ErrArchiveUnavailable, got %v", err)
	}
}

func TestFetch(t *testing.T) {
	document := []byte(`{"schema":"certledger.document.v1"}`)
	hash := DocumentHash(document)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/objects/"+hash {
			w.Write(document)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	doc, err := client.Fetch(context.Background(), hash)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(doc.Body) != string(document) {
		t.Fatal("fetched body differs")
	}
	if DocumentHash(doc.Body) != hash {
		t.Fatal("integrity round trip failed")
	}

	_, err = client.Fetch(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
