package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"imaging-gateway/dicomweb"
)

// backpressureDelay is how long the loop sleeps when storage is full
// before checking again.
const backpressureDelay = 500 * time.Millisecond

// Orchestrator drains the inference-request queue one request at a
// time, retrieves the referenced data and pushes a notification per
// retrieved file.
type Orchestrator struct {
	Repo       Repository
	Notifier   Notifier
	Gate       SpaceChecker
	FS         FileSystem
	Secrets    SecretSource
	HTTPClient *http.Client
}

// Run processes requests until ctx is cancelled. Individual request
// failures are recorded and do not stop the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Printf("Retrieval: orchestrator started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("Retrieval: orchestrator stopping: %v", ctx.Err())
			return ctx.Err()
		default:
		}

		if o.Gate != nil && !o.Gate.HasSpaceToRetrieve() {
			log.Printf("Retrieval: storage space low (%d bytes free), waiting", o.Gate.AvailableFreeSpace())
			select {
			case <-time.After(backpressureDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		req, err := o.Repo.Take(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Printf("Retrieval: taking next request: %v", err)
			continue
		}

		status := StatusSuccess
		if err := o.processRequest(ctx, req); err != nil {
			log.Printf("Retrieval: request %s failed: %v", req.TransactionID, err)
			status = StatusFail
		}
		if err := o.Repo.Update(ctx, req, status); err != nil {
			log.Printf("Retrieval: updating request %s: %v", req.TransactionID, err)
		}
	}
}

// processRequest runs one full retrieval pass for a request. retrieved
// maps on-disk path to file info; files already present from an earlier
// interrupted pass are loaded first so sources can skip them.
func (o *Orchestrator) processRequest(ctx context.Context, req *InferenceRequest) error {
	log.Printf("Retrieval: processing request %s (priority %d)", req.TransactionID, req.Priority)
	retrieved := make(map[string]*FileStorageInfo)
	o.restoreExisting(req, retrieved)

	for _, input := range req.InputResources {
		switch input.Interface {
		case InterfaceDicomWeb:
			if err := o.retrieveViaDicomWeb(ctx, req, input.ConnectionDetails, retrieved); err != nil {
				return fmt.Errorf("retrieving via DICOMweb from %s: %w", input.ConnectionDetails.URI, err)
			}
		case InterfaceFhir:
			o.retrieveViaFhir(ctx, req, input.ConnectionDetails, retrieved)
		case InterfaceAlgorithm:
			// Names the consumer of the data, nothing to fetch.
			continue
		default:
			log.Printf("Retrieval: request %s: unknown input interface %q, skipping", req.TransactionID, input.Interface)
		}
	}

	return o.notifyRetrieved(ctx, req, retrieved)
}

// restoreExisting pre-populates the retrieved map from files already on
// disk so a restarted pass does not fetch them again.
func (o *Orchestrator) restoreExisting(req *InferenceRequest, retrieved map[string]*FileStorageInfo) {
	files, err := o.FS.ListFiles(req.StoragePath)
	if err != nil {
		log.Printf("Retrieval: request %s: listing existing files under %s: %v", req.TransactionID, req.StoragePath, err)
		return
	}
	for _, path := range files {
		retrieved[path] = &FileStorageInfo{
			CorrelationID:   req.TransactionID,
			StorageRootPath: req.StoragePath,
			FilePath:        path,
		}
	}
	if len(files) > 0 {
		log.Printf("Retrieval: request %s: restored %d existing files", req.TransactionID, len(files))
	}
}

// notifyRetrieved publishes one notification per retrieved file. A pass
// that produced nothing at all is a failed request.
func (o *Orchestrator) notifyRetrieved(ctx context.Context, req *InferenceRequest, retrieved map[string]*FileStorageInfo) error {
	if len(retrieved) == 0 {
		return errors.New("no files retrieved for request")
	}
	for _, info := range retrieved {
		if req.ApplicationID != "" {
			info.SetApplication(req.ApplicationID)
		}
		if err := o.Notifier.Queue(ctx, info); err != nil {
			return fmt.Errorf("queueing notification for %s: %w", info.FilePath, err)
		}
	}
	log.Printf("Retrieval: request %s: %d files retrieved and queued", req.TransactionID, len(retrieved))
	return nil
}

// retrieveViaDicomWeb dispatches the request's metadata entries against
// one DICOMweb source. Any entry failing fails the whole request.
func (o *Orchestrator) retrieveViaDicomWeb(ctx context.Context, req *InferenceRequest, conn ConnectionDetails, retrieved map[string]*FileStorageInfo) error {
	header, err := AuthHeaderValue(ctx, conn, o.Secrets)
	if err != nil {
		return err
	}
	client, err := dicomweb.NewClient(o.HTTPClient, conn.URI)
	if err != nil {
		return fmt.Errorf("configuring DICOMweb client: %w", err)
	}
	if header != "" {
		client.ConfigureAuthentication(header)
	}

	if req.InputMetadata == nil {
		return nil
	}
	for _, details := range req.InputMetadata.Inputs {
		switch details.Type {
		case DetailsDicomUid:
			if err := o.retrieveStudies(ctx, client, req, details.Studies, retrieved); err != nil {
				return err
			}
		case DetailsDicomPatientID:
			if err := o.queryStudies(ctx, client, req, dicomweb.TagPatientID, details.PatientID, retrieved); err != nil {
				return err
			}
		case DetailsAccessionNumber:
			for _, accession := range details.AccessionNumbers {
				if err := o.queryStudies(ctx, client, req, dicomweb.TagAccessionNumber, accession, retrieved); err != nil {
					return err
				}
			}
		case DetailsFhirResource:
			// Handled by the FHIR source.
			continue
		default:
			return fmt.Errorf("unsupported metadata details type %q", details.Type)
		}
	}
	return nil
}

// queryStudies resolves a QIDO query to study UIDs, then retrieves each
// study wholesale.
func (o *Orchestrator) queryStudies(ctx context.Context, client *dicomweb.Client, req *InferenceRequest, queryTag, value string, retrieved map[string]*FileStorageInfo) error {
	var studies []RequestedStudy
	for result, err := range dicomweb.SearchForStudies[dicomweb.Dataset](ctx, client.Qido, map[string]string{queryTag: value}) {
		if err != nil {
			return fmt.Errorf("querying studies by %s=%s: %w", queryTag, value, err)
		}
		uid := result.GetString(dicomweb.TagStudyInstanceUID)
		if uid == "" {
			log.Printf("Retrieval: request %s: query result without StudyInstanceUID, skipping", req.TransactionID)
			continue
		}
		studies = append(studies, RequestedStudy{StudyInstanceUID: uid})
	}
	if len(studies) == 0 {
		log.Printf("Retrieval: request %s: no studies found for %s=%s", req.TransactionID, queryTag, value)
		return nil
	}
	return o.retrieveStudies(ctx, client, req, studies, retrieved)
}

// retrieveStudies walks the study/series/instance hierarchy. A study
// with no series listed is fetched whole; a series with no instances
// listed likewise.
func (o *Orchestrator) retrieveStudies(ctx context.Context, client *dicomweb.Client, req *InferenceRequest, studies []RequestedStudy, retrieved map[string]*FileStorageInfo) error {
	for _, study := range studies {
		if len(study.Series) == 0 {
			stream, err := client.Wado.RetrieveStudy(ctx, study.StudyInstanceUID)
			if err != nil {
				return fmt.Errorf("retrieving study %s: %w", study.StudyInstanceUID, err)
			}
			if err := o.saveStream(ctx, req, stream, retrieved); err != nil {
				return err
			}
			continue
		}
		if err := o.retrieveSeries(ctx, client, req, study, retrieved); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) retrieveSeries(ctx context.Context, client *dicomweb.Client, req *InferenceRequest, study RequestedStudy, retrieved map[string]*FileStorageInfo) error {
	for _, series := range study.Series {
		if len(series.Instances) == 0 {
			stream, err := client.Wado.RetrieveSeries(ctx, study.StudyInstanceUID, series.SeriesInstanceUID)
			if err != nil {
				return fmt.Errorf("retrieving series %s: %w", series.SeriesInstanceUID, err)
			}
			if err := o.saveStream(ctx, req, stream, retrieved); err != nil {
				return err
			}
			continue
		}
		if err := o.retrieveInstances(ctx, client, req, study.StudyInstanceUID, series, retrieved); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) retrieveInstances(ctx context.Context, client *dicomweb.Client, req *InferenceRequest, studyUID string, series RequestedSeries, retrieved map[string]*FileStorageInfo) error {
	count := len(retrieved)
	for _, instance := range series.Instances {
		for _, sopUID := range instance.SOPInstanceUIDs {
			data, err := client.Wado.RetrieveInstance(ctx, studyUID, series.SeriesInstanceUID, sopUID)
			if err != nil {
				return fmt.Errorf("retrieving instance %s: %w", sopUID, err)
			}
			info := NewFileStorageInfo(req.TransactionID, req.StoragePath, strconv.Itoa(count), ".dcm")
			if _, ok := retrieved[info.FilePath]; ok {
				log.Printf("Retrieval: request %s: instance already retrieved as %s, skipping", req.TransactionID, info.FilePath)
				continue
			}
			if err := o.saveFile(ctx, info, data); err != nil {
				return err
			}
			retrieved[info.FilePath] = info
			count++
		}
	}
	return nil
}

// saveStream drains a multipart stream of instances to disk, numbering
// files from the current map size.
func (o *Orchestrator) saveStream(ctx context.Context, req *InferenceRequest, stream *dicomweb.PartStream, retrieved map[string]*FileStorageInfo) error {
	defer stream.Close()
	count := len(retrieved)
	for {
		part, err := stream.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading retrieved part: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return fmt.Errorf("reading retrieved part: %w", err)
		}
		info := NewFileStorageInfo(req.TransactionID, req.StoragePath, strconv.Itoa(count), ".dcm")
		count++
		if _, ok := retrieved[info.FilePath]; ok {
			log.Printf("Retrieval: request %s: file %s already retrieved, skipping", req.TransactionID, info.FilePath)
			continue
		}
		if err := o.saveFile(ctx, info, data); err != nil {
			return err
		}
		retrieved[info.FilePath] = info
	}
}

// saveFile writes one artifact, retrying transient disk errors.
func (o *Orchestrator) saveFile(ctx context.Context, info *FileStorageInfo, data []byte) error {
	err := withRetry(ctx, retryAttempts, "saving "+info.FilePath, func() error {
		if err := o.FS.MkdirAll(info.StorageRootPath); err != nil {
			return err
		}
		return o.FS.WriteFile(info.FilePath, data)
	})
	if err != nil {
		return fmt.Errorf("saving %s: %w", info.FilePath, err)
	}
	return nil
}
