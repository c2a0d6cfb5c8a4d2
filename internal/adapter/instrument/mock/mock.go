// Package mock provides a scripted in-memory instrument adapter for
// development and tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/verilab/verilab/internal/domain"
)

// Adapter is a scripted domain.InstrumentAdapter.
type Adapter struct {
	mu sync.Mutex

	ConnectErr error
	Connected  bool
	Orders     []domain.OrderData
	OrdersErr  error
	Outcome    domain.SubmissionOutcome
	ProcessErr error

	// Recorded calls.
	Processed []domain.InstrumentResultPayload
}

// New returns a connected adapter with an empty script.
func New() *Adapter { return &Adapter{Connected: true} }

// TestConnection reports the scripted connectivity.
func (a *Adapter) TestConnection(_ context.Context) (domain.ConnectionTestResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ConnectErr != nil {
		return domain.ConnectionTestResult{}, a.ConnectErr
	}
	return domain.ConnectionTestResult{IsConnected: a.Connected, LastTestedAt: time.Now().UTC()}, nil
}

// GetPendingOrders returns the scripted order list.
func (a *Adapter) GetPendingOrders(_ context.Context, _, _, patientID, sampleBarcode string) ([]domain.OrderData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.OrdersErr != nil {
		return nil, a.OrdersErr
	}
	var out []domain.OrderData
	for _, o := range a.Orders {
		if patientID != "" && o.PatientID != patientID {
			continue
		}
		if sampleBarcode != "" && o.SampleBarcode != sampleBarcode {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// ProcessResult records the payload and returns the scripted outcome.
func (a *Adapter) ProcessResult(_ context.Context, _, _ string, payload domain.InstrumentResultPayload) (domain.SubmissionOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Processed = append(a.Processed, payload)
	if a.ProcessErr != nil {
		return domain.SubmissionOutcome{}, a.ProcessErr
	}
	out := a.Outcome
	if out.Status == "" {
		out.Status = domain.SubmissionAccepted
	}
	return out, nil
}
