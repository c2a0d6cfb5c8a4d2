package domain

import (
	"context"
	"time"
)

// Adapter ports. Concrete LIS and instrument drivers implement these; the
// services consume them. Mock realizations live under internal/adapter.

// ConnectionTestResult reports an adapter connectivity probe.
type ConnectionTestResult struct {
	IsConnected  bool
	LastTestedAt time.Time
	ErrorMessage string
	Details      map[string]string
}

// SampleData is the wire-neutral sample shape a LIS adapter yields.
type SampleData struct {
	ExternalLISID  string
	PatientID      string
	SpecimenType   string
	CollectionDate time.Time
	ReceivedDate   time.Time
}

// ResultData is the wire-neutral result shape a LIS adapter yields.
type ResultData struct {
	ExternalLISResultID string
	TestCode            string
	TestName            string
	Value               string
	Unit                string
	ReferenceRangeLow   *float64
	ReferenceRangeHigh  *float64
	LISFlags            string
}

// ResultPayload is one result queued for upload to the LIS.
type ResultPayload struct {
	ResultID            string
	ExternalLISResultID string
	SampleExternalLISID string
	TestCode            string
	Value               string
	Unit                string
	VerificationStatus  VerificationStatus
	VerificationMethod  VerificationMethod
	VerifiedAt          time.Time
}

// UploadOutcome is what the LIS reports back for a batch upload.
type UploadOutcome struct {
	TotalSent       int
	TotalFailed     int
	FailedResultIDs []string
	RetryScheduled  bool
	NextRetryAt     *time.Time
	ErrorMessage    string
}

// LISAdapter is the pluggable LIS driver contract.
type LISAdapter interface {
	TestConnection(ctx context.Context) (ConnectionTestResult, error)
	GetSamples(ctx context.Context, since *time.Time) ([]SampleData, error)
	GetResults(ctx context.Context, sampleExternalLISID string) ([]ResultData, error)
	SendResults(ctx context.Context, payloads []ResultPayload) (UploadOutcome, error)
	AcknowledgeResults(ctx context.Context, externalLISResultIDs []string) (bool, error)
}

// OrderData is the wire-neutral order shape handed to instruments.
type OrderData struct {
	OrderID            string
	ExternalLISOrderID string
	SampleID           string
	SampleBarcode      string
	PatientID          string
	TestCodes          []string
	Priority           OrderPriority
}

// InstrumentResultPayload is a measurement pushed by an instrument.
type InstrumentResultPayload struct {
	ExternalInstrumentResultID string
	SampleBarcode              string
	TestCode                   string
	TestName                   string
	Value                      string
	Unit                       string
	ReferenceRangeLow          *float64
	ReferenceRangeHigh         *float64
	Flags                      string
	MeasuredAt                 time.Time
}

// SubmissionStatus classifies an instrument result submission.
type SubmissionStatus string

const (
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
)

// SubmissionOutcome reports the handling of one submitted result.
type SubmissionOutcome struct {
	ResultID           string
	Status             SubmissionStatus
	VerificationQueued bool
	ErrorMessage       string
}

// InstrumentAdapter is the pluggable instrument driver contract.
type InstrumentAdapter interface {
	TestConnection(ctx context.Context) (ConnectionTestResult, error)
	GetPendingOrders(ctx context.Context, tenantID, instrumentID, patientID, sampleBarcode string) ([]OrderData, error)
	ProcessResult(ctx context.Context, tenantID, instrumentID string, payload InstrumentResultPayload) (SubmissionOutcome, error)
}
