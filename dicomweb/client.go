// Package dicomweb implements a DICOMweb protocol client covering the
// STOW-RS (store), QIDO-RS (query) and WADO-RS (retrieve) services.
//
// The client is bound to a single base URI and is safe to construct per
// retrieval source; the three sub-services share that base URI plus an
// optional, independently configurable path prefix.
package dicomweb

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"context"
)

// MIME types used on the DICOMweb wire.
const (
	MimeDicom     = "application/dicom"
	MimeDicomJSON = "application/dicom+json"
)

// DefaultClientTimeout bounds a single DICOMweb request end to end.
// Whole-study retrievals can be large, so this is deliberately generous.
const DefaultClientTimeout = 3600 * time.Second

// ServiceType names one of the three DICOMweb sub-services.
type ServiceType int

const (
	ServiceWado ServiceType = iota
	ServiceQido
	ServiceStow
)

func (s ServiceType) String() string {
	switch s {
	case ServiceWado:
		return "WADO"
	case ServiceQido:
		return "QIDO"
	case ServiceStow:
		return "STOW"
	}
	return "unknown"
}

// Client is a DICOMweb client for sending HTTP requests to and receiving
// HTTP responses from a single DICOMweb server.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	authHeader string

	Stow *StowService
	Qido *QidoService
	Wado *WadoService
}

// NewClient returns a client bound to baseURL. The URL must be absolute;
// a trailing slash is added if missing so relative service paths resolve
// under it. A nil httpClient gets a default with DefaultClientTimeout.
func NewClient(httpClient *http.Client, baseURL string) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultClientTimeout}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DICOMweb base URL %q: %w", baseURL, err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("DICOMweb base URL %q is not absolute", baseURL)
	}

	c := &Client{httpClient: httpClient, base: base}
	c.Stow = &StowService{service{client: c}}
	c.Qido = &QidoService{service{client: c}}
	c.Wado = &WadoService{service{client: c}}
	return c, nil
}

// ConfigureAuthentication sets the Authorization header value sent with
// every request, e.g. "Bearer <token>" or "Basic <credentials>".
func (c *Client) ConfigureAuthentication(header string) {
	c.authHeader = header
}

// ConfigureServicePrefix sets the URL prefix for one sub-service. It
// returns an error when the prefix does not compose into a well-formed
// URI against the base address.
func (c *Client) ConfigureServicePrefix(serviceType ServiceType, prefix string) error {
	var ok bool
	switch serviceType {
	case ServiceWado:
		ok = c.Wado.TryConfigureServicePrefix(prefix)
	case ServiceQido:
		ok = c.Qido.TryConfigureServicePrefix(prefix)
	case ServiceStow:
		ok = c.Stow.TryConfigureServicePrefix(prefix)
	}
	if !ok {
		return fmt.Errorf("invalid url prefix specified for %s: %q", serviceType, prefix)
	}
	return nil
}

// service is the base shared by the three sub-services.
type service struct {
	client *Client
	prefix string
}

// TryConfigureServicePrefix validates that prefix composes into a
// well-formed URI against the configured base address. It never panics:
// a malformed prefix is logged and reported as false.
func (s *service) TryConfigureServicePrefix(prefix string) bool {
	if strings.TrimSpace(prefix) == "" {
		log.Printf("dicomweb: empty service prefix rejected")
		return false
	}
	resolved, err := s.client.base.Parse(prefix)
	if err != nil {
		log.Printf("dicomweb: invalid service prefix %q: %v", prefix, err)
		return false
	}
	if resolved.Host != s.client.base.Host {
		log.Printf("dicomweb: service prefix %q escapes base address %s", prefix, s.client.base)
		return false
	}
	s.prefix = strings.Trim(prefix, "/") + "/"
	return true
}

// studiesPath builds the studies resource path, optionally scoped to one
// study instance UID.
func (s *service) studiesPath(studyInstanceUID string) string {
	if strings.TrimSpace(studyInstanceUID) == "" {
		return s.prefix + "studies/"
	}
	return s.prefix + "studies/" + studyInstanceUID + "/"
}

// newRequest builds a request for a path relative to the base address
// and applies the configured Authorization header.
func (s *service) newRequest(ctx context.Context, method, ref string, body io.Reader) (*http.Request, error) {
	u, err := s.client.base.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("compose DICOMweb URL %q: %w", ref, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if s.client.authHeader != "" {
		req.Header.Set("Authorization", s.client.authHeader)
	}
	return req, nil
}

func (s *service) do(req *http.Request) (*http.Response, error) {
	return s.client.httpClient.Do(req)
}
