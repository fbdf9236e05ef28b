package retrieval

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
)

// retrieveViaFhir fetches the request's FHIR resources from one source.
// Unlike DICOMweb, individual resource failures do not fail the
// request; whatever was fetched still counts.
func (o *Orchestrator) retrieveViaFhir(ctx context.Context, req *InferenceRequest, conn ConnectionDetails, retrieved map[string]*FileStorageInfo) {
	header, err := AuthHeaderValue(ctx, conn, o.Secrets)
	if err != nil {
		log.Printf("Retrieval: request %s: FHIR source %s: %v", req.TransactionID, conn.URI, err)
		return
	}
	if req.InputMetadata == nil {
		return
	}
	for _, details := range req.InputMetadata.Inputs {
		if details.Type != DetailsFhirResource {
			continue
		}
		o.retrieveFhirResources(ctx, req, conn, header, details, retrieved)
	}
}

func (o *Orchestrator) retrieveFhirResources(ctx context.Context, req *InferenceRequest, conn ConnectionDetails, header string, details *InferenceRequestDetails, retrieved map[string]*FileStorageInfo) {
	if err := o.FS.MkdirAll(req.StoragePath); err != nil {
		log.Printf("Retrieval: request %s: creating storage path %s: %v", req.TransactionID, req.StoragePath, err)
		return
	}
	for _, resource := range details.Resources {
		if resource.IsRetrieved {
			continue
		}
		ok, err := o.retrieveFhirResource(ctx, req, conn, header, details, resource, retrieved)
		if err != nil {
			log.Printf("Retrieval: request %s: FHIR resource %s/%s: %v", req.TransactionID, resource.Type, resource.ID, err)
			continue
		}
		resource.IsRetrieved = ok
	}
}

func (o *Orchestrator) retrieveFhirResource(ctx context.Context, req *InferenceRequest, conn ConnectionDetails, header string, details *InferenceRequestDetails, resource *FhirResource, retrieved map[string]*FileStorageInfo) (bool, error) {
	format := details.FhirFormat
	if format == "" {
		format = "json"
	}
	accept := details.FhirAcceptHeader
	if accept == "" {
		accept = "application/fhir+json"
	}

	url := fmt.Sprintf("%s%s/%s", conn.URI, resource.Type, resource.ID)
	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	var body []byte
	err := withRetry(ctx, retryAttempts, "fetching "+url, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Accept", accept)
		if header != "" {
			httpReq.Header.Set("Authorization", header)
		}
		resp, err := client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return false, err
	}

	info := NewFileStorageInfo(req.TransactionID, req.StoragePath, resource.Type+"-"+resource.ID, "."+format)
	if err := o.FS.WriteFile(info.FilePath, body); err != nil {
		return false, fmt.Errorf("writing %s: %w", info.FilePath, err)
	}
	retrieved[info.FilePath] = info
	return true, nil
}
