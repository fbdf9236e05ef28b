package scp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"syscall"

	"github.com/google/uuid"
)

// Handler drives one inbound DICOM association. A new Handler is created
// for every connection; it is never shared.
type Handler struct {
	ae     AEManager
	writer StorageWriter

	assoc     *Association
	logPrefix string
	counted   bool
}

// NewHandler builds a per-connection handler. Both collaborators are
// required; a nil value is a listener misconfiguration and aborts
// startup rather than failing per connection.
func NewHandler(ae AEManager, writer StorageWriter) (*Handler, error) {
	if ae == nil {
		return nil, errors.New("scp: AE manager is required")
	}
	if writer == nil {
		return nil, errors.New("scp: storage writer is required")
	}
	return &Handler{ae: ae, writer: writer, logPrefix: "scp:"}, nil
}

// OnAssociationRequest negotiates an inbound association request.
//
// The active-association counter is incremented here regardless of the
// outcome; the matching decrement happens in OnConnectionClosed, which
// the engine calls on every connection teardown.
func (h *Handler) OnAssociationRequest(ctx context.Context, assoc *Association) Outcome {
	ActiveAssociations.Add(1)
	h.counted = true

	if assoc.ID == uuid.Nil {
		assoc.ID = uuid.New()
	}
	h.assoc = assoc
	h.logPrefix = fmt.Sprintf("scp[#%s %s:%d]:", assoc.ID, assoc.RemoteHost, assoc.RemotePort)
	log.Printf("%s association received from %s:%d (calling=%s called=%s)",
		h.logPrefix, assoc.RemoteHost, assoc.RemotePort, assoc.CallingAE, assoc.CalledAE)

	cfg := h.ae.Config()

	if cfg.RejectUnknownSources && !h.ae.IsValidSource(assoc.CallingAE, assoc.RemoteHost) {
		log.Printf("%s calling AE %q at %s is not a configured source, rejecting", h.logPrefix, assoc.CallingAE, assoc.RemoteHost)
		return Outcome{Reason: RejectCallingAENotRecognized}
	}
	if !h.ae.IsAeTitleConfigured(assoc.CalledAE) {
		log.Printf("%s called AE %q is not a configured local entity, rejecting", h.logPrefix, assoc.CalledAE)
		return Outcome{Reason: RejectCalledAENotRecognized}
	}

	for _, pc := range assoc.PresentationContexts {
		switch {
		case pc.AbstractSyntax == VerificationSOPClassUID:
			if !cfg.EnableVerification {
				log.Printf("%s verification service is disabled, rejecting association", h.logPrefix)
				return Outcome{Reason: RejectApplicationContextNotSupported}
			}
			pc.Accepted = append([]string(nil), cfg.VerificationTransferSyntaxes...)

		case IsStorageCategory(pc.AbstractSyntax):
			if !cfg.CanStore {
				log.Printf("%s storage capability is disabled for %s, rejecting association", h.logPrefix, assoc.CalledAE)
				return Outcome{Reason: RejectNoReasonGiven}
			}
			// Accept every proposed transfer syntax; format diversity
			// is handled downstream of ingestion.
			pc.Accepted = append([]string(nil), pc.TransferSyntaxes...)
		}
	}

	log.Printf("%s association accepted", h.logPrefix)
	return Outcome{Accepted: true}
}

// OnCEcho answers a verification request. No state changes.
func (h *Handler) OnCEcho(ctx context.Context) Status {
	log.Printf("%s C-ECHO request received", h.logPrefix)
	return StatusSuccess
}

// OnCStore persists one instance through the storage writer and maps the
// result to a DICOM status. Storage exhaustion never tears down the
// connection: the peer gets StatusResourceLimitation and may retry.
func (h *Handler) OnCStore(ctx context.Context, req *CStoreRequest) Status {
	log.Printf("%s C-STORE %s transfer syntax %s", h.logPrefix, req.SOPInstanceUID, req.TransferSyntax)

	err := h.writer.HandleCStoreRequest(ctx, req, h.assoc.CalledAE, h.assoc.CallingAE, h.assoc.ID)
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrInsufficientStorage) || isDiskFull(err):
		log.Printf("%s failed to process C-STORE request, out of storage space: %v", h.logPrefix, err)
		return StatusResourceLimitation
	default:
		log.Printf("%s failed to process C-STORE request: %v", h.logPrefix, err)
		return StatusProcessingFailure
	}
}

// OnReleaseRequest acknowledges an association release.
func (h *Handler) OnReleaseRequest(ctx context.Context) {
	log.Printf("%s association release request received", h.logPrefix)
}

// OnAbort records an A-ABORT from the peer.
func (h *Handler) OnAbort(source, reason string) {
	log.Printf("%s aborted by %s with reason %s", h.logPrefix, source, reason)
}

// OnConnectionClosed releases the per-association state. This is the
// only place the active-association counter is decremented.
func (h *Handler) OnConnectionClosed(err error) {
	if err != nil {
		log.Printf("%s connection closed with error: %v", h.logPrefix, err)
	}
	if h.counted {
		ActiveAssociations.Add(-1)
		h.counted = false
	}
	h.logPrefix = "scp:"
}

// isDiskFull matches the platform "no space" I/O errors a write path can
// surface instead of the explicit admission signal.
func isDiskFull(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT)
}
