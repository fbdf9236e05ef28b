package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"

	"imaging-gateway/dicomweb"
	"imaging-gateway/retrieval"
	"imaging-gateway/storage"
)

type dropNotifier struct{}

func (dropNotifier) Queue(ctx context.Context, info *retrieval.FileStorageInfo) error { return nil }

// openGate builds a real admission gate that always admits: watermark
// 100 fixes the reserved threshold at zero.
func openGate(t *testing.T, path string) *storage.AdmissionGate {
	t.Helper()
	gate, err := storage.NewAdmissionGate(path, 100, 0)
	if err != nil {
		t.Fatalf("NewAdmissionGate: %v", err)
	}
	return gate
}

func encodeTestInstance(t *testing.T, studyUID, sopUID string) []byte {
	t.Helper()
	mustElement := func(tg tag.Tag, value interface{}) *dicom.Element {
		el, err := dicom.NewElement(tg, value)
		if err != nil {
			t.Fatalf("NewElement(%v): %v", tg, err)
		}
		return el
	}
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustElement(tag.MediaStorageSOPInstanceUID, []string{sopUID}),
		mustElement(tag.TransferSyntaxUID, []string{uid.ExplicitVRLittleEndian}),
		mustElement(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustElement(tag.SOPInstanceUID, []string{sopUID}),
		mustElement(tag.StudyInstanceUID, []string{studyUID}),
	}}
	data, err := dicomweb.EncodeDataset(&ds)
	if err != nil {
		t.Fatalf("EncodeDataset: %v", err)
	}
	return data
}

func multipartBody(t *testing.T, parts ...[]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, part := range parts {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Type", dicomweb.MimeDicom)
		pw, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		pw.Write(part)
	}
	mw.Close()
	contentType := fmt.Sprintf(`multipart/related; boundary=%s; type=%q`, mw.Boundary(), dicomweb.MimeDicom)
	return &buf, contentType
}

func TestStowHandlerStoresMatchingInstances(t *testing.T) {
	root := t.TempDir()
	gate := openGate(t, root)
	writer := storage.NewWriter(root, gate, dropNotifier{}, nil)
	h := &Handlers{Cfg: Config{StorageRoot: root}, Writer: writer, Gate: gate}

	const study = "1.2.3.100"
	body, contentType := multipartBody(t,
		encodeTestInstance(t, study, study+".1"),
		encodeTestInstance(t, "1.2.3.200", "1.2.3.200.1"), // wrong study
	)
	req := httptest.NewRequest(http.MethodPost, "/dicomweb/studies/"+study, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.StowHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Stored  int      `json:"stored"`
		Skipped int      `json:"skipped"`
		Paths   []string `json:"paths"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stored != 1 || resp.Skipped != 1 {
		t.Errorf("stored=%d skipped=%d, want 1/1", resp.Stored, resp.Skipped)
	}
	want := filepath.Join(root, study, study+".1.dcm")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected stored instance at %s: %v", want, err)
	}
}

func TestStowHandlerNoMatches(t *testing.T) {
	root := t.TempDir()
	gate := openGate(t, root)
	h := &Handlers{
		Cfg:    Config{StorageRoot: root},
		Writer: storage.NewWriter(root, gate, dropNotifier{}, nil),
		Gate:   gate,
	}
	body, contentType := multipartBody(t, encodeTestInstance(t, "1.2.3.200", "1.2.3.200.1"))
	req := httptest.NewRequest(http.MethodPost, "/dicomweb/studies/1.2.3.100", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.StowHandler(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestStowHandlerRejectsWrongContentType(t *testing.T) {
	root := t.TempDir()
	gate := openGate(t, root)
	h := &Handlers{
		Cfg:    Config{StorageRoot: root},
		Writer: storage.NewWriter(root, gate, dropNotifier{}, nil),
		Gate:   gate,
	}
	req := httptest.NewRequest(http.MethodPost, "/dicomweb/studies", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.StowHandler(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	root := t.TempDir()
	h := &Handlers{Gate: openGate(t, root)}
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ok"] != true {
		t.Errorf("response = %v", resp)
	}
}
