package domain

import "time"

// ConnectionStatus is the derived health of a LIS connection.
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionInactive ConnectionStatus = "inactive"
	ConnectionFailed   ConnectionStatus = "failed"
)

// IntegrationModel selects push vs pull LIS integration.
type IntegrationModel string

const (
	ModelPush IntegrationModel = "push"
	ModelPull IntegrationModel = "pull"
)

// FailureThreshold is the consecutive-failure count at which a LIS
// connection is marked failed and an instrument disconnected.
const FailureThreshold = 3

// LISConfig is the single per-tenant LIS integration configuration.
type LISConfig struct {
	ID               string
	TenantID         string
	LISType          string
	IntegrationModel IntegrationModel
	APIEndpointURL   string
	APIAuthCreds     string
	TenantAPIKey     string

	PullIntervalMinutes int

	ConnectionStatus        ConnectionStatus
	ConnectionFailureCount  int
	UploadFailureCount      int
	LastTestedAt            *time.Time
	LastSuccessfulRetrieval *time.Time
	LastSuccessfulUploadAt  *time.Time
	LastUploadFailureAt     *time.Time

	AutoUploadEnabled     bool
	UploadVerifiedResults bool
	UploadRejectedResults bool
	UploadBatchSize       int
	UploadRateLimit       int // results per minute

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InstrumentStatus tracks registry state of an analyzer.
type InstrumentStatus string

const (
	InstrumentActive       InstrumentStatus = "active"
	InstrumentInactive     InstrumentStatus = "inactive"
	InstrumentDisconnected InstrumentStatus = "disconnected"
)

// Instrument is an analytical device registered to a tenant. Name is unique
// per tenant; APIToken is globally unique.
type Instrument struct {
	ID             string
	TenantID       string
	Name           string
	InstrumentType string
	Status         InstrumentStatus

	APIToken          string
	APITokenCreatedAt *time.Time

	ConnectionFailureCount int
	LastSuccessfulQueryAt  *time.Time
	LastSuccessfulResultAt *time.Time
	LastFailureAt          *time.Time
	LastFailureReason      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsHealthy is the public health projection of an instrument.
func (i Instrument) IsHealthy() bool { return i.ConnectionFailureCount < FailureThreshold }

// QueryResponseStatus classifies an instrument host-query outcome.
type QueryResponseStatus string

const (
	QuerySuccess QueryResponseStatus = "success"
	QueryError   QueryResponseStatus = "error"
	QueryTimeout QueryResponseStatus = "timeout"
)

// InstrumentQuery is an immutable audit row recorded for every host-query an
// instrument makes.
type InstrumentQuery struct {
	ID                  string
	TenantID            string
	InstrumentID        string
	QueryTimestamp      time.Time
	ResponseTimestamp   time.Time
	ResponseTimeMS      int64
	OrdersReturnedCount int
	ResponseStatus      QueryResponseStatus
	QueryPatientID      string
	QuerySampleBarcode  string
	ErrorReason         string
	CreatedAt           time.Time
}
