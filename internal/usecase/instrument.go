package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/verilab/verilab/internal/domain"
)

// InstrumentService owns the instrument registry, token authentication, the
// host-query protocol with its audit trail, and result submission.
type InstrumentService struct {
	Instruments domain.InstrumentRepository
	Queries     domain.InstrumentQueryRepository
	Orders      domain.OrderRepository
	Results     domain.ResultRepository
	Samples     domain.SampleRepository
	Verifier    *VerificationService
}

// NewInstrumentService constructs an InstrumentService over the given ports.
func NewInstrumentService(instruments domain.InstrumentRepository, queries domain.InstrumentQueryRepository, orders domain.OrderRepository, results domain.ResultRepository, samples domain.SampleRepository, verifier *VerificationService) *InstrumentService {
	return &InstrumentService{
		Instruments: instruments,
		Queries:     queries,
		Orders:      orders,
		Results:     results,
		Samples:     samples,
		Verifier:    verifier,
	}
}

// Register adds an instrument to the tenant's registry. A missing token is
// auto-generated; initial status is inactive until an operator activates it.
func (s *InstrumentService) Register(ctx context.Context, tenantID, name, instrumentType, token string) (domain.Instrument, error) {
	if name == "" {
		return domain.Instrument{}, fmt.Errorf("op=instrument.register: name required: %w", domain.ErrInvalidArgument)
	}
	if token == "" {
		var err error
		token, err = newOpaqueToken()
		if err != nil {
			return domain.Instrument{}, err
		}
	}
	now := time.Now().UTC()
	id, err := s.Instruments.Create(ctx, domain.Instrument{
		TenantID:          tenantID,
		Name:              name,
		InstrumentType:    instrumentType,
		Status:            domain.InstrumentInactive,
		APIToken:          token,
		APITokenCreatedAt: &now,
	})
	if err != nil {
		return domain.Instrument{}, err
	}
	return s.Instruments.GetByID(ctx, tenantID, id)
}

// Get loads one instrument.
func (s *InstrumentService) Get(ctx context.Context, tenantID, id string) (domain.Instrument, error) {
	return s.Instruments.GetByID(ctx, tenantID, id)
}

// List returns the tenant's instruments.
func (s *InstrumentService) List(ctx context.Context, tenantID string) ([]domain.Instrument, error) {
	return s.Instruments.List(ctx, tenantID)
}

// Update writes name, type, and status.
func (s *InstrumentService) Update(ctx context.Context, tenantID, id, name, instrumentType string, status domain.InstrumentStatus) (domain.Instrument, error) {
	i, err := s.Instruments.GetByID(ctx, tenantID, id)
	if err != nil {
		return domain.Instrument{}, err
	}
	if name != "" {
		i.Name = name
	}
	if instrumentType != "" {
		i.InstrumentType = instrumentType
	}
	if status != "" {
		i.Status = status
	}
	if err := s.Instruments.Update(ctx, i); err != nil {
		return domain.Instrument{}, err
	}
	return s.Instruments.GetByID(ctx, tenantID, id)
}

// Delete removes an instrument from the registry.
func (s *InstrumentService) Delete(ctx context.Context, tenantID, id string) error {
	return s.Instruments.Delete(ctx, tenantID, id)
}

// RegenerateToken issues a fresh API token and stamps its creation time.
func (s *InstrumentService) RegenerateToken(ctx context.Context, tenantID, id string) (domain.Instrument, error) {
	i, err := s.Instruments.GetByID(ctx, tenantID, id)
	if err != nil {
		return domain.Instrument{}, err
	}
	token, err := newOpaqueToken()
	if err != nil {
		return domain.Instrument{}, err
	}
	now := time.Now().UTC()
	i.APIToken = token
	i.APITokenCreatedAt = &now
	if err := s.Instruments.Update(ctx, i); err != nil {
		return domain.Instrument{}, err
	}
	return s.Instruments.GetByID(ctx, tenantID, id)
}

// Authenticate resolves an X-Instrument-Token to its instrument. Unknown
// token → ErrUnauthorized; known but non-active instrument → ErrForbidden.
func (s *InstrumentService) Authenticate(ctx context.Context, token string) (domain.Instrument, error) {
	if token == "" {
		return domain.Instrument{}, fmt.Errorf("op=instrument.authenticate: missing token: %w", domain.ErrUnauthorized)
	}
	i, err := s.Instruments.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Instrument{}, fmt.Errorf("op=instrument.authenticate: %w", domain.ErrUnauthorized)
		}
		return domain.Instrument{}, err
	}
	if subtle.ConstantTimeCompare([]byte(i.APIToken), []byte(token)) != 1 {
		return domain.Instrument{}, fmt.Errorf("op=instrument.authenticate: %w", domain.ErrUnauthorized)
	}
	if i.Status != domain.InstrumentActive {
		return domain.Instrument{}, fmt.Errorf("op=instrument.authenticate status=%s: %w", i.Status, domain.ErrForbidden)
	}
	return i, nil
}

// QueryHostResponse is what a host-query returns to the instrument.
type QueryHostResponse struct {
	Orders           []domain.OrderData
	QueryTimestamp   time.Time
	InstrumentStatus domain.InstrumentStatus
}

// QueryHost serves an instrument's request for work: pending orders for its
// tenant, optionally narrowed by patient or sample barcode. Every query,
// successful or not, leaves an immutable audit row.
func (s *InstrumentService) QueryHost(ctx context.Context, inst domain.Instrument, patientID, sampleBarcode string) (QueryHostResponse, error) {
	started := time.Now().UTC()

	orders, err := s.pendingOrders(ctx, inst.TenantID, patientID, sampleBarcode)
	finished := time.Now().UTC()
	audit := domain.InstrumentQuery{
		TenantID:           inst.TenantID,
		InstrumentID:       inst.ID,
		QueryTimestamp:     started,
		ResponseTimestamp:  finished,
		ResponseTimeMS:     finished.Sub(started).Milliseconds(),
		QueryPatientID:     patientID,
		QuerySampleBarcode: sampleBarcode,
	}
	if err != nil {
		audit.ResponseStatus = domain.QueryError
		audit.ErrorReason = err.Error()
		s.writeAudit(ctx, audit)
		s.recordFailure(ctx, inst, err.Error())
		return QueryHostResponse{}, fmt.Errorf("op=instrument.query_host: %w", err)
	}
	audit.ResponseStatus = domain.QuerySuccess
	audit.OrdersReturnedCount = len(orders)
	s.writeAudit(ctx, audit)

	inst.ConnectionFailureCount = 0
	inst.Status = domain.InstrumentActive
	inst.LastSuccessfulQueryAt = &finished
	if err := s.Instruments.Update(ctx, inst); err != nil {
		slog.Warn("instrument health write failed", slog.String("instrument_id", inst.ID), slog.Any("error", err))
	}
	return QueryHostResponse{Orders: orders, QueryTimestamp: started, InstrumentStatus: domain.InstrumentActive}, nil
}

func (s *InstrumentService) pendingOrders(ctx context.Context, tenantID, patientID, sampleBarcode string) ([]domain.OrderData, error) {
	filter := domain.OrderFilter{Status: domain.OrderPending, PatientID: patientID}
	if sampleBarcode != "" {
		smp, err := s.Samples.GetByExternalLISID(ctx, tenantID, sampleBarcode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		filter.SampleID = smp.ID
	}
	orders, err := s.Orders.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderData, 0, len(orders))
	for _, o := range orders {
		barcode := sampleBarcode
		if barcode == "" && o.SampleID != "" {
			if smp, err := s.Samples.GetByID(ctx, tenantID, o.SampleID); err == nil {
				barcode = smp.ExternalLISID
			}
		}
		out = append(out, domain.OrderData{
			OrderID:            o.ID,
			ExternalLISOrderID: o.ExternalLISOrderID,
			SampleID:           o.SampleID,
			SampleBarcode:      barcode,
			PatientID:          o.PatientID,
			TestCodes:          o.TestCodes,
			Priority:           o.Priority,
		})
	}
	return out, nil
}

func (s *InstrumentService) writeAudit(ctx context.Context, q domain.InstrumentQuery) {
	if _, err := s.Queries.Create(ctx, q); err != nil {
		slog.Error("instrument query audit write failed", slog.String("instrument_id", q.InstrumentID), slog.Any("error", err))
	}
}

// recordFailure bumps the failure counter; at the threshold the instrument
// is forced disconnected.
func (s *InstrumentService) recordFailure(ctx context.Context, inst domain.Instrument, reason string) {
	now := time.Now().UTC()
	inst.ConnectionFailureCount++
	inst.LastFailureAt = &now
	inst.LastFailureReason = reason
	if inst.ConnectionFailureCount >= domain.FailureThreshold {
		inst.Status = domain.InstrumentDisconnected
	}
	if err := s.Instruments.Update(ctx, inst); err != nil {
		slog.Error("instrument failure write failed", slog.String("instrument_id", inst.ID), slog.Any("error", err))
	}
}

// SubmitResult accepts a measurement pushed by an authenticated instrument.
// A duplicate submission is accepted idempotently as success; new results
// are verified synchronously.
func (s *InstrumentService) SubmitResult(ctx context.Context, inst domain.Instrument, p domain.InstrumentResultPayload) (domain.SubmissionOutcome, error) {
	if p.TestCode == "" {
		return domain.SubmissionOutcome{Status: domain.SubmissionRejected, ErrorMessage: "test_code required"},
			fmt.Errorf("op=instrument.submit_result: test_code required: %w", domain.ErrInvalidArgument)
	}
	if p.ReferenceRangeLow != nil && p.ReferenceRangeHigh != nil && *p.ReferenceRangeLow > *p.ReferenceRangeHigh {
		return domain.SubmissionOutcome{Status: domain.SubmissionRejected, ErrorMessage: "reference range inverted"},
			fmt.Errorf("op=instrument.submit_result: reference range inverted: %w", domain.ErrInvalidArgument)
	}

	if p.ExternalInstrumentResultID != "" {
		existing, err := s.Results.GetByInstrumentResultID(ctx, inst.TenantID, inst.ID, p.ExternalInstrumentResultID)
		if err == nil {
			return domain.SubmissionOutcome{ResultID: existing.ID, Status: domain.SubmissionAccepted, VerificationQueued: false}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.SubmissionOutcome{}, err
		}
	}

	sampleID := ""
	if p.SampleBarcode != "" {
		if smp, err := s.Samples.GetByExternalLISID(ctx, inst.TenantID, p.SampleBarcode); err == nil {
			sampleID = smp.ID
		}
	}

	id, err := s.Results.Create(ctx, domain.Result{
		TenantID:                   inst.TenantID,
		SampleID:                   sampleID,
		TestCode:                   p.TestCode,
		TestName:                   p.TestName,
		Value:                      p.Value,
		Unit:                       p.Unit,
		ReferenceRangeLow:          p.ReferenceRangeLow,
		ReferenceRangeHigh:         p.ReferenceRangeHigh,
		LISFlags:                   p.Flags,
		InstrumentID:               inst.ID,
		ExternalInstrumentResultID: p.ExternalInstrumentResultID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, gerr := s.Results.GetByInstrumentResultID(ctx, inst.TenantID, inst.ID, p.ExternalInstrumentResultID)
			if gerr == nil {
				return domain.SubmissionOutcome{ResultID: existing.ID, Status: domain.SubmissionAccepted, VerificationQueued: false}, nil
			}
		}
		return domain.SubmissionOutcome{}, err
	}

	now := time.Now().UTC()
	inst.LastSuccessfulResultAt = &now
	inst.ConnectionFailureCount = 0
	if err := s.Instruments.Update(ctx, inst); err != nil {
		slog.Warn("instrument health write failed", slog.String("instrument_id", inst.ID), slog.Any("error", err))
	}

	verificationQueued := false
	if s.Verifier != nil {
		if _, err := s.Verifier.VerifyResult(ctx, inst.TenantID, id); err != nil {
			slog.Warn("submission verification failed", slog.String("result_id", id), slog.Any("error", err))
		} else {
			verificationQueued = true
		}
	}
	return domain.SubmissionOutcome{ResultID: id, Status: domain.SubmissionAccepted, VerificationQueued: verificationQueued}, nil
}

// QueryLog returns the newest host-query audit rows for an instrument.
func (s *InstrumentService) QueryLog(ctx context.Context, tenantID, instrumentID string, limit int) ([]domain.InstrumentQuery, error) {
	if _, err := s.Instruments.GetByID(ctx, tenantID, instrumentID); err != nil {
		return nil, err
	}
	return s.Queries.ListByInstrument(ctx, tenantID, instrumentID, limit)
}
