package dicomweb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// stowBoundary is the fixed multipart boundary token used for every
// STOW-RS upload. A stable boundary keeps requests reproducible and
// easy to inspect on the wire.
const stowBoundary = "DICOM-INSTANCE-BOUNDARY-7a3e1f"

// StowService stores DICOM instances on the remote server (STOW-RS).
type StowService struct {
	service
}

// Store uploads the given datasets as one multipart/related POST.
//
// When studyInstanceUID is non-empty, only datasets whose embedded
// StudyInstanceUID matches it are uploaded; mismatches are logged and
// skipped. If nothing survives the filter, ErrNoMatchingFiles is
// returned and no HTTP request is issued.
//
// A transport failure is wrapped into a ClientError. A non-success HTTP
// status is logged but the response body is still parsed and returned:
// callers inspect Response.StatusCode themselves.
func (s *StowService) Store(ctx context.Context, studyInstanceUID string, datasets []*dicom.Dataset) (*Response[string], error) {
	var encoded [][]byte
	for _, ds := range datasets {
		uid := DatasetString(ds, tag.StudyInstanceUID)
		if studyInstanceUID != "" && uid != studyInstanceUID {
			log.Printf("dicomweb: STOW target study %s does not match instance study %s, skipping", studyInstanceUID, uid)
			continue
		}
		data, err := EncodeDataset(ds)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, data)
	}
	if len(encoded) == 0 {
		return nil, ErrNoMatchingFiles
	}

	body, contentType, err := buildMultipartRelated(encoded)
	if err != nil {
		return nil, err
	}

	req, err := s.newRequest(ctx, http.MethodPost, s.studiesPath(studyInstanceUID), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", MimeDicomJSON)

	resp, err := s.do(req)
	if err != nil {
		return nil, &ClientError{Message: "failed to store DICOM instances", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("dicomweb: STOW returned status %d for %d instance(s)", resp.StatusCode, len(encoded))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Response[string]{StatusCode: resp.StatusCode, Payload: err.Error()}, nil
	}
	return &Response[string]{StatusCode: resp.StatusCode, Payload: string(payload)}, nil
}

// buildMultipartRelated assembles a multipart/related body with one
// application/dicom part per instance and the fixed boundary token.
func buildMultipartRelated(parts [][]byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(stowBoundary); err != nil {
		return nil, "", fmt.Errorf("set STOW boundary: %w", err)
	}
	for _, data := range parts {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Type", MimeDicom)
		pw, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, "", fmt.Errorf("create STOW part: %w", err)
		}
		if _, err := pw.Write(data); err != nil {
			return nil, "", fmt.Errorf("write STOW part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finish STOW body: %w", err)
	}
	contentType := fmt.Sprintf(`multipart/related; boundary=%s; type=%q`, stowBoundary, MimeDicom)
	return &buf, contentType, nil
}
