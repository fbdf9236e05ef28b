package dicomweb

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// DatasetString extracts the first string value for the given tag, or ""
// when the element is absent or empty.
func DatasetString(ds *dicom.Dataset, t tag.Tag) string {
	if ds == nil {
		return ""
	}
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return ""
	}
	vals := dicom.MustGetStrings(el.Value)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// EncodeDataset serializes a dataset into DICOM Part 10 bytes.
func EncodeDataset(ds *dicom.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := dicom.Write(&buf, *ds); err != nil {
		sop := DatasetString(ds, tag.SOPInstanceUID)
		return nil, fmt.Errorf("encode DICOM instance %s: %w", sop, err)
	}
	return buf.Bytes(), nil
}
