// Package gateway provides the patient-data backend boundary. It fetches raw
// records over HTTP and normalizes them into the two-section shape the
// workflow engine consumes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"medflow/pkg/logx"
)

// ErrorKind distinguishes gateway failures so callers can present different
// guidance for each.
type ErrorKind int8

const (
	// KindNotFound means the patient ID has no record.
	KindNotFound ErrorKind = iota
	// KindUnavailable means the backend is unreachable or returned a server error.
	KindUnavailable
	// KindTimeout means the fetch exceeded its deadline.
	KindTimeout
	// KindMalformed means the backend returned a payload that violates the contract.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed_response"
	default:
		return "invalid"
	}
}

// Error is a classified gateway failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or KindUnavailable for
// unclassified errors, since an unknown failure mode reads as a backend
// problem to the doctor either way.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// Personal holds the identifying section of a patient record.
type Personal struct {
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	Age         int    `json:"age"`
}

// NormalizedRecord is a patient record split into personal and medical
// sections. Medical values keep their JSON types (string, float64, bool).
type NormalizedRecord struct {
	Personal Personal
	Medical  map[string]any
}

// Gateway fetches and normalizes patient records.
type Gateway interface {
	Fetch(ctx context.Context, patientID string) (*NormalizedRecord, error)
}

// wireRecord is the backend payload shape.
type wireRecord struct {
	Personal *Personal      `json:"personal"`
	Medical  map[string]any `json:"medical"`
}

// HTTPGateway talks to the patient-data backend over HTTP.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	logger  *logx.Logger
}

// DefaultFetchTimeout bounds a single record fetch.
const DefaultFetchTimeout = 30 * time.Second

// NewHTTPGateway creates a gateway against baseURL with the given per-fetch
// timeout. A zero timeout selects DefaultFetchTimeout.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logx.NewLogger("gateway"),
	}
}

// Fetch retrieves and normalizes the record for patientID.
func (g *HTTPGateway) Fetch(ctx context.Context, patientID string) (*NormalizedRecord, error) {
	if patientID == "" {
		return nil, &Error{Kind: KindNotFound, Message: "empty patient id"}
	}

	endpoint := fmt.Sprintf("%s/patients/%s", g.baseURL, url.PathEscape(patientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	g.logger.Debug("Fetching record for patient %s", patientID)
	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Message: fmt.Sprintf("fetch for patient %s timed out", patientID), Err: err}
		}
		return nil, &Error{Kind: KindUnavailable, Message: "patient-data backend unreachable", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only response body

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("no record for patient %s", patientID)}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: KindUnavailable, Message: fmt.Sprintf("backend returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "failed to read response", Err: err}
	}

	var wire wireRecord
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &Error{Kind: KindMalformed, Message: "backend payload is not valid JSON", Err: err}
	}
	if wire.Personal == nil {
		return nil, &Error{Kind: KindMalformed, Message: "backend payload missing personal section"}
	}

	record := &NormalizedRecord{
		Personal: *wire.Personal,
		Medical:  wire.Medical,
	}
	if record.Medical == nil {
		record.Medical = map[string]any{}
	}

	g.logger.Debug("Normalized record for patient %s: %d medical fields", patientID, len(record.Medical))
	return record, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
