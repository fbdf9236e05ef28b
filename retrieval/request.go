// Package retrieval implements the gateway's inference-request
// retrieval pipeline: the orchestrator loop, the DICOMweb and FHIR
// retrieval strategies, and the request model they share.
package retrieval

// InputInterface is the kind of external system an input resource
// points at.
type InputInterface string

const (
	InterfaceDicomWeb  InputInterface = "DICOMweb"
	InterfaceFhir      InputInterface = "FHIR"
	InterfaceAlgorithm InputInterface = "Algorithm"
)

// AuthType selects how the connection credential in AuthID is applied.
type AuthType string

const (
	AuthNone   AuthType = "None"
	AuthBasic  AuthType = "Basic"
	AuthBearer AuthType = "Bearer"
	// AuthSecret resolves AuthID through the configured secret source;
	// the secret payload is the complete Authorization header value.
	AuthSecret AuthType = "Secret"
)

// ConnectionDetails describes how to reach one input source.
type ConnectionDetails struct {
	URI      string   `firestore:"uri" json:"uri"`
	AuthType AuthType `firestore:"auth_type" json:"auth_type"`
	AuthID   string   `firestore:"auth_id" json:"auth_id"`
}

// RequestInputDataResource is one configured input source of an
// inference request.
type RequestInputDataResource struct {
	Interface         InputInterface    `firestore:"interface" json:"interface"`
	ConnectionDetails ConnectionDetails `firestore:"connection_details" json:"connection_details"`
}

// DetailsType is the addressing mode of one metadata entry.
type DetailsType string

const (
	DetailsDicomUid        DetailsType = "DICOM_UID"
	DetailsDicomPatientID  DetailsType = "DICOM_PATIENT_ID"
	DetailsAccessionNumber DetailsType = "ACCESSION_NUMBER"
	DetailsFhirResource    DetailsType = "FHIR_RESOURCE"
)

// RequestedInstance names one or more SOP instances within a series.
type RequestedInstance struct {
	SOPInstanceUIDs []string `firestore:"sop_instance_uids" json:"sop_instance_uids"`
}

// RequestedSeries addresses a series, optionally narrowed to instances.
// An empty Instances list means the whole series is retrieved as a unit.
type RequestedSeries struct {
	SeriesInstanceUID string              `firestore:"series_instance_uid" json:"series_instance_uid"`
	Instances         []RequestedInstance `firestore:"instances" json:"instances"`
}

// RequestedStudy addresses a study, optionally narrowed to series. An
// empty Series list means the whole study is retrieved as a unit.
type RequestedStudy struct {
	StudyInstanceUID string            `firestore:"study_instance_uid" json:"study_instance_uid"`
	Series           []RequestedSeries `firestore:"series" json:"series"`
}

// FhirResource names one FHIR resource to fetch. IsRetrieved flips to
// true once fetched and the resource is never retried within the same
// request pass.
type FhirResource struct {
	Type        string `firestore:"type" json:"type"`
	ID          string `firestore:"id" json:"id"`
	IsRetrieved bool   `firestore:"is_retrieved" json:"is_retrieved"`
}

// InferenceRequestDetails is one metadata entry of a request, typed by
// addressing mode.
type InferenceRequestDetails struct {
	Type             DetailsType      `firestore:"type" json:"type"`
	Studies          []RequestedStudy `firestore:"studies,omitempty" json:"studies,omitempty"`
	PatientID        string           `firestore:"patient_id,omitempty" json:"patient_id,omitempty"`
	AccessionNumbers []string         `firestore:"accession_numbers,omitempty" json:"accession_numbers,omitempty"`
	Resources        []*FhirResource  `firestore:"resources,omitempty" json:"resources,omitempty"`
	FhirFormat       string           `firestore:"fhir_format,omitempty" json:"fhir_format,omitempty"`
	FhirAcceptHeader string           `firestore:"fhir_accept_header,omitempty" json:"fhir_accept_header,omitempty"`
}

// InferenceRequestMetadata groups the metadata entries of a request.
type InferenceRequestMetadata struct {
	Inputs []*InferenceRequestDetails `firestore:"inputs" json:"inputs"`
}

// Lifecycle states and terminal statuses of an inference request. State
// transitions are externally durable through the Repository.
const (
	StateQueued     = "queued"
	StateInProgress = "in_progress"
	StateCompleted  = "completed"

	StatusSuccess = "success"
	StatusFail    = "fail"
)

// InferenceRequest is one queued retrieval job. The orchestrator owns it
// for the duration of a single processing pass.
type InferenceRequest struct {
	TransactionID  string                      `firestore:"transaction_id" json:"transaction_id"`
	Priority       int                         `firestore:"priority" json:"priority"`
	InputResources []*RequestInputDataResource `firestore:"input_resources" json:"input_resources"`
	InputMetadata  *InferenceRequestMetadata   `firestore:"input_metadata" json:"input_metadata"`
	StoragePath    string                      `firestore:"storage_path" json:"storage_path"`
	ApplicationID  string                      `firestore:"application_id,omitempty" json:"application_id,omitempty"`

	State    string `firestore:"state" json:"state"`
	Status   string `firestore:"status" json:"status"`
	TryCount int    `firestore:"try_count" json:"try_count"`
}
