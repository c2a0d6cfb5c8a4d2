package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SampleStatus tracks the sample-level outcome of the verification pipeline.
type SampleStatus string

const (
	SamplePending     SampleStatus = "pending"
	SampleVerified    SampleStatus = "verified"
	SampleNeedsReview SampleStatus = "needs_review"
	SampleRejected    SampleStatus = "rejected"
)

// Sample is a physical specimen received from the LIS.
type Sample struct {
	ID             string
	TenantID       string
	ExternalLISID  string
	PatientID      string
	SpecimenType   string
	CollectionDate time.Time
	ReceivedDate   time.Time
	Status         SampleStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate enforces creation invariants.
func (s Sample) Validate() error {
	if s.TenantID == "" {
		return fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	if s.ExternalLISID == "" {
		return fmt.Errorf("%w: external_lis_id required", ErrInvalidArgument)
	}
	if !s.CollectionDate.IsZero() && !s.ReceivedDate.IsZero() && s.CollectionDate.After(s.ReceivedDate) {
		return fmt.Errorf("%w: collection_date after received_date", ErrInvalidArgument)
	}
	return nil
}

// OrderStatus tracks instrument execution of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
)

// OrderPriority is the LIS-assigned urgency of an order.
type OrderPriority string

const (
	PriorityRoutine  OrderPriority = "routine"
	PriorityStat     OrderPriority = "stat"
	PriorityCritical OrderPriority = "critical"
)

// Order is a request that certain tests be run on a sample. It is the
// canonical entity shared between the LIS and instrument sides.
type Order struct {
	ID                   string
	TenantID             string
	ExternalLISOrderID   string
	SampleID             string
	PatientID            string
	TestCodes            []string
	Priority             OrderPriority
	Status               OrderStatus
	AssignedInstrumentID string
	AssignedAt           *time.Time
	CompletedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CanAssign reports whether the order may be handed to an instrument.
// Only pending orders are assignable.
func (o Order) CanAssign() bool { return o.Status == OrderPending }

// orderTransitions encodes the order state machine.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderInProgress, OrderCancelled},
	OrderInProgress: {OrderCompleted, OrderFailed},
}

// CanTransitionTo reports whether the order status change is legal.
func (o Order) CanTransitionTo(next OrderStatus) bool {
	for _, s := range orderTransitions[o.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// VerificationStatus is the verification-pipeline state of a result.
type VerificationStatus string

const (
	VerificationPending     VerificationStatus = "pending"
	VerificationVerified    VerificationStatus = "verified"
	VerificationNeedsReview VerificationStatus = "needs_review"
	VerificationRejected    VerificationStatus = "rejected"
)

// Terminal reports whether the status is immutable.
func (v VerificationStatus) Terminal() bool {
	return v == VerificationVerified || v == VerificationRejected
}

// UploadStatus is the LIS-upload state of a result.
type UploadStatus string

const (
	UploadPending UploadStatus = "pending"
	UploadSent    UploadStatus = "sent"
	UploadFailed  UploadStatus = "failed"
)

// VerificationMethod records how a result left pending.
type VerificationMethod string

const (
	MethodAuto   VerificationMethod = "auto"
	MethodManual VerificationMethod = "manual"
)

// Result is one measurement for one test code belonging to a sample.
type Result struct {
	ID                  string
	TenantID            string
	ExternalLISResultID string
	SampleID            string
	TestCode            string
	TestName            string
	Value               string
	Unit                string
	ReferenceRangeLow   *float64
	ReferenceRangeHigh  *float64
	LISFlags            string

	// Set for instrument-submitted results; empty for LIS-ingested ones.
	InstrumentID               string
	ExternalInstrumentResultID string

	VerificationStatus VerificationStatus
	VerificationMethod VerificationMethod

	UploadStatus        UploadStatus
	UploadFailureCount  int
	UploadFailureReason string
	SentToLISAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces creation invariants.
func (r Result) Validate() error {
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	if r.TestCode == "" {
		return fmt.Errorf("%w: test_code required", ErrInvalidArgument)
	}
	if r.ReferenceRangeLow != nil && r.ReferenceRangeHigh != nil && *r.ReferenceRangeLow > *r.ReferenceRangeHigh {
		return fmt.Errorf("%w: reference_range_low above reference_range_high", ErrInvalidArgument)
	}
	return nil
}

// NumericValue parses the measurement value; ok is false for non-numeric
// values such as "POSITIVE".
func (r Result) NumericValue() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
	return v, err == nil
}
