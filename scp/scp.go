// Package scp implements the association-level decision logic for the
// gateway's DICOM storage SCP: AE-title authorization, presentation
// context negotiation, and the C-ECHO / C-STORE outcome mapping.
//
// PDU encoding belongs to the hosting DIMSE engine. The engine creates
// one Handler per inbound connection, injects the connection-level
// collaborators, and invokes the On* callbacks as it decodes messages.
package scp

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification (C-ECHO) SOP class UID.
const VerificationSOPClassUID = "1.2.840.10008.1.1"

// All standard storage SOP classes live under this UID root.
const storageSOPClassRoot = "1.2.840.10008.5.1.4.1.1."

// IsStorageCategory reports whether the abstract syntax names a
// storage-category SOP class.
func IsStorageCategory(abstractSyntaxUID string) bool {
	return len(abstractSyntaxUID) > len(storageSOPClassRoot) &&
		abstractSyntaxUID[:len(storageSOPClassRoot)] == storageSOPClassRoot
}

// ActiveAssociations counts associations currently in flight across the
// whole process. OnAssociationRequest increments it; OnConnectionClosed
// is the only place it is decremented, so it nets to zero across accept,
// reject, abort and normal-close paths alike.
var ActiveAssociations atomic.Int64

var _ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
	Name: "imaging_gateway_scp_active_associations",
	Help: "Number of DICOM associations currently in flight",
}, func() float64 {
	return float64(ActiveAssociations.Load())
})

// RejectReason is the DICOM association rejection reason reported to the
// peer.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectCallingAENotRecognized
	RejectCalledAENotRecognized
	RejectApplicationContextNotSupported
	RejectNoReasonGiven
)

func (r RejectReason) String() string {
	switch r {
	case RejectCallingAENotRecognized:
		return "calling AE title not recognized"
	case RejectCalledAENotRecognized:
		return "called AE title not recognized"
	case RejectApplicationContextNotSupported:
		return "application context not supported"
	case RejectNoReasonGiven:
		return "no reason given"
	}
	return "none"
}

// Status is a DIMSE response status code.
type Status uint16

const (
	StatusSuccess            Status = 0x0000
	StatusProcessingFailure  Status = 0x0110
	StatusResourceLimitation Status = 0xA700
)

// PresentationContext is one proposed (abstract syntax, transfer syntax
// list) pairing. Accepted is filled during negotiation; an empty
// Accepted on an accepted association means the context was not part of
// a supported service.
type PresentationContext struct {
	ID               uint8
	AbstractSyntax   string
	TransferSyntaxes []string
	Accepted         []string
}

// Association is the per-connection identity and negotiation state. It
// is created on association request and owned by exactly one Handler.
type Association struct {
	ID         uuid.UUID
	RemoteHost string
	RemotePort int
	CallingAE  string
	CalledAE   string

	PresentationContexts []*PresentationContext
}

// Outcome is the result of association negotiation.
type Outcome struct {
	Accepted bool
	Reason   RejectReason
}

// CStoreRequest is one storage operation decoded by the DIMSE engine.
type CStoreRequest struct {
	SOPClassUID    string
	SOPInstanceUID string
	TransferSyntax string
	Data           io.Reader
}

// AEConfig is a snapshot of the live SCP configuration consulted during
// negotiation.
type AEConfig struct {
	EnableVerification           bool
	RejectUnknownSources         bool
	VerificationTransferSyntaxes []string
	CanStore                     bool
}

// AEManager authorizes application entities and exposes the SCP
// configuration.
type AEManager interface {
	IsAeTitleConfigured(calledAE string) bool
	IsValidSource(callingAE, host string) bool
	Config() AEConfig
}

// ErrInsufficientStorage signals that an instance was refused because
// the storage admission gate reported no space. Handlers map it to
// StatusResourceLimitation so the peer can retry later.
var ErrInsufficientStorage = errors.New("insufficient storage available")

// StorageWriter persists instances received over C-STORE.
type StorageWriter interface {
	HandleCStoreRequest(ctx context.Context, req *CStoreRequest, calledAE, callingAE string, associationID uuid.UUID) error
}
