package dicomweb

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
)

// WadoService retrieves DICOM objects from the remote server (WADO-RS).
type WadoService struct {
	service
}

// PartStream reads the binary parts of a multipart/related response one
// at a time, without buffering the whole response. Callers must drain or
// close the stream.
type PartStream struct {
	body io.ReadCloser
	mr   *multipart.Reader
}

// Next returns a reader over the next binary part, or io.EOF when the
// response is exhausted. The returned reader is only valid until the
// next call.
func (p *PartStream) Next() (io.Reader, error) {
	part, err := p.mr.NextPart()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read multipart response: %w", err)
	}
	return part, nil
}

// Close releases the underlying response body.
func (p *PartStream) Close() error {
	return p.body.Close()
}

// RetrieveStudy fetches every instance of a study as a lazy part stream.
func (w *WadoService) RetrieveStudy(ctx context.Context, studyInstanceUID string) (*PartStream, error) {
	return w.retrieve(ctx, w.studiesPath(studyInstanceUID))
}

// RetrieveSeries fetches every instance of one series as a lazy part stream.
func (w *WadoService) RetrieveSeries(ctx context.Context, studyInstanceUID, seriesInstanceUID string) (*PartStream, error) {
	return w.retrieve(ctx, w.studiesPath(studyInstanceUID)+"series/"+seriesInstanceUID+"/")
}

// RetrieveInstance fetches a single SOP instance and returns its bytes.
func (w *WadoService) RetrieveInstance(ctx context.Context, studyInstanceUID, seriesInstanceUID, sopInstanceUID string) ([]byte, error) {
	ref := w.studiesPath(studyInstanceUID) + "series/" + seriesInstanceUID + "/instances/" + sopInstanceUID
	stream, err := w.retrieve(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	part, err := stream.Next()
	if err == io.EOF {
		return nil, fmt.Errorf("instance %s: empty multipart response", sopInstanceUID)
	}
	if err != nil {
		return nil, err
	}
	return io.ReadAll(part)
}

// retrieve issues the GET and validates that the response is
// multipart/related; any other content type is a decode failure.
func (w *WadoService) retrieve(ctx context.Context, ref string) (*PartStream, error) {
	req, err := w.newRequest(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", fmt.Sprintf(`multipart/related; type=%q`, MimeDicom))

	resp, err := w.do(req)
	if err != nil {
		return nil, &ClientError{Message: "WADO retrieve failed", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &ClientError{StatusCode: resp.StatusCode, Message: "WADO retrieve failed"}
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("parse WADO content type: %w", err)
	}
	if mediaType != "multipart/related" {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected WADO content type %q, want multipart/related", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("WADO response is missing the multipart boundary")
	}

	return &PartStream{body: resp.Body, mr: multipart.NewReader(resp.Body, boundary)}, nil
}
