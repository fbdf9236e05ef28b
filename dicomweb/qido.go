package dicomweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
)

// DICOM attribute tags in the GGGGEEEE hex form QIDO-RS queries use.
const (
	TagStudyInstanceUID = "0020000D"
	TagPatientID        = "00100020"
	TagAccessionNumber  = "00080050"
	TagSOPInstanceUID   = "00080018"
)

// Attribute is a single DICOM-JSON attribute value.
type Attribute struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value,omitempty"`
}

// Dataset is a decoded DICOM-JSON result: attribute tag (GGGGEEEE hex)
// to attribute.
type Dataset map[string]Attribute

// GetString returns the first value of the given tag as a string, or ""
// when the attribute is absent, empty, or not a JSON string.
func (d Dataset) GetString(tagHex string) string {
	attr, ok := d[tagHex]
	if !ok || len(attr.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(attr.Value[0], &s); err != nil {
		return ""
	}
	return s
}

// ResultPayload constrains the types a QIDO query can decode into: the
// raw JSON text of each entry, or a structured dataset.
type ResultPayload interface {
	~string | Dataset
}

// QidoService queries the remote server for metadata (QIDO-RS).
type QidoService struct {
	service
}

// SearchForStudies issues a study-level QIDO-RS query and yields one
// decoded result per JSON array entry, lazily and in source order. The
// HTTP request is not issued until the sequence is first pulled; request
// and decode failures are yielded in place of a result.
//
// The supported result payloads are enforced by the ResultPayload
// constraint, so an unsupported requested type is rejected before any
// network call, at compile time.
func SearchForStudies[T ResultPayload](ctx context.Context, q *QidoService, queryParams map[string]string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		ref := q.studiesPath("")
		if len(queryParams) > 0 {
			values := url.Values{}
			for k, v := range queryParams {
				values.Set(k, v)
			}
			ref += "?" + values.Encode()
		}

		req, err := q.newRequest(ctx, http.MethodGet, ref, nil)
		if err != nil {
			yield(zero, err)
			return
		}
		req.Header.Set("Accept", MimeDicomJSON)

		resp, err := q.do(req)
		if err != nil {
			yield(zero, &ClientError{Message: "QIDO query failed", Err: err})
			return
		}
		defer resp.Body.Close()

		// 204 is a valid empty result set.
		if resp.StatusCode == http.StatusNoContent {
			return
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			yield(zero, &ClientError{StatusCode: resp.StatusCode, Message: "QIDO query failed"})
			return
		}

		var entries []json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			yield(zero, fmt.Errorf("decode QIDO response: %w", err))
			return
		}
		for _, entry := range entries {
			v, err := decodeResult[T](entry)
			if !yield(v, err) {
				return
			}
		}
	}
}

func decodeResult[T ResultPayload](raw json.RawMessage) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *string:
		*p = string(raw)
	case *Dataset:
		if err := json.Unmarshal(raw, p); err != nil {
			return out, fmt.Errorf("decode QIDO entry: %w", err)
		}
	default:
		return out, fmt.Errorf("unsupported QIDO result type %T", out)
	}
	return out, nil
}
