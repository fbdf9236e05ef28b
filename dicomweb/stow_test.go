package dicomweb

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"
)

// testDataset builds a minimal writable dataset with the given UIDs.
func testDataset(t *testing.T, studyUID, sopUID string) *dicom.Dataset {
	t.Helper()
	mustElement := func(tg tag.Tag, value interface{}) *dicom.Element {
		el, err := dicom.NewElement(tg, value)
		if err != nil {
			t.Fatalf("NewElement(%v): %v", tg, err)
		}
		return el
	}
	ds := &dicom.Dataset{Elements: []*dicom.Element{
		mustElement(tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustElement(tag.MediaStorageSOPInstanceUID, []string{sopUID}),
		mustElement(tag.TransferSyntaxUID, []string{uid.ExplicitVRLittleEndian}),
		mustElement(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustElement(tag.SOPInstanceUID, []string{sopUID}),
		mustElement(tag.StudyInstanceUID, []string{studyUID}),
	}}
	return ds
}

func TestStowNoMatchingFilesSkipsRequest(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	client, err := NewClient(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	datasets := []*dicom.Dataset{
		testDataset(t, "1.2.3.100", "1.2.3.100.1"),
		testDataset(t, "1.2.3.200", "1.2.3.200.1"),
	}
	_, err = client.Stow.Store(context.Background(), "1.2.3.999", datasets)
	if !errors.Is(err, ErrNoMatchingFiles) {
		t.Fatalf("err = %v, want ErrNoMatchingFiles", err)
	}
	if got := requests.Load(); got != 0 {
		t.Errorf("server saw %d requests, want 0", got)
	}
}

func TestStowFiltersAndUploadsMatching(t *testing.T) {
	const study = "1.2.3.100"
	var gotContentType string
	var gotParts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if !strings.HasSuffix(r.URL.Path, "/studies/"+study+"/") {
			t.Errorf("path = %q, want studies/%s/ suffix", r.URL.Path, study)
		}
		_, params, err := mime.ParseMediaType(gotContentType)
		if err != nil {
			t.Errorf("parse request content type: %v", err)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("reading part: %v", err)
				return
			}
			if ct := part.Header.Get("Content-Type"); ct != MimeDicom {
				t.Errorf("part content type = %q, want %q", ct, MimeDicom)
			}
			gotParts++
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"00081190":{"vr":"UR"}}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	datasets := []*dicom.Dataset{
		testDataset(t, study, study+".1"),
		testDataset(t, "1.2.3.200", "1.2.3.200.1"), // filtered out
		testDataset(t, study, study+".2"),
	}
	resp, err := client.Stow.Store(context.Background(), study, datasets)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !resp.IsSuccess() {
		t.Errorf("status = %d, want 2xx", resp.StatusCode)
	}
	if gotParts != 2 {
		t.Errorf("server received %d parts, want 2", gotParts)
	}

	mediaType, params, err := mime.ParseMediaType(gotContentType)
	if err != nil || mediaType != "multipart/related" {
		t.Errorf("content type = %q, want multipart/related", gotContentType)
	}
	if params["boundary"] != stowBoundary {
		t.Errorf("boundary = %q, want the fixed token", params["boundary"])
	}
	if params["type"] != MimeDicom {
		t.Errorf("type param = %q, want %q", params["type"], MimeDicom)
	}
}

func TestStowNonSuccessStatusStillParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"duplicate"}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp, err := client.Stow.Store(context.Background(), "", []*dicom.Dataset{testDataset(t, "1.2.3", "1.2.3.1")})
	if err != nil {
		t.Fatalf("Store should not error on a non-2xx status: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if resp.Payload != `{"error":"duplicate"}` {
		t.Errorf("payload = %q", resp.Payload)
	}
	if resp.IsSuccess() {
		t.Errorf("409 should not report success")
	}
}

func TestStowTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client, err := NewClient(nil, srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Stow.Store(context.Background(), "", []*dicom.Dataset{testDataset(t, "1.2.3", "1.2.3.1")})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("err = %v, want *ClientError", err)
	}
	if clientErr.StatusCode != 0 {
		t.Errorf("transport failure should carry no status code, got %d", clientErr.StatusCode)
	}
}
