// Package mock provides a scripted in-memory LIS adapter for development
// and tests. Queue sample/result data on the adapter; calls consume the
// script and record what they were asked.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/verilab/verilab/internal/domain"
)

// Adapter is a scripted domain.LISAdapter.
type Adapter struct {
	mu sync.Mutex

	// Script.
	ConnectErr   error
	Connected    bool
	SamplesQueue []domain.SampleData
	SamplesErr   error
	ResultsBySID map[string][]domain.ResultData
	ResultsErr   error
	SendOutcome  domain.UploadOutcome
	SendErr      error
	AckOK        bool
	AckErr       error

	// Recorded calls.
	SentBatches [][]domain.ResultPayload
	AckedIDs    [][]string
	GetSince    []*time.Time
}

// New returns a connected adapter with an empty script.
func New() *Adapter {
	return &Adapter{Connected: true, AckOK: true, ResultsBySID: make(map[string][]domain.ResultData)}
}

// TestConnection reports the scripted connectivity.
func (a *Adapter) TestConnection(_ context.Context) (domain.ConnectionTestResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ConnectErr != nil {
		return domain.ConnectionTestResult{}, a.ConnectErr
	}
	return domain.ConnectionTestResult{IsConnected: a.Connected, LastTestedAt: time.Now().UTC()}, nil
}

// GetSamples returns the scripted sample queue.
func (a *Adapter) GetSamples(_ context.Context, since *time.Time) ([]domain.SampleData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.GetSince = append(a.GetSince, since)
	if a.SamplesErr != nil {
		return nil, a.SamplesErr
	}
	out := make([]domain.SampleData, len(a.SamplesQueue))
	copy(out, a.SamplesQueue)
	return out, nil
}

// GetResults returns the scripted results for one sample.
func (a *Adapter) GetResults(_ context.Context, sampleExternalLISID string) ([]domain.ResultData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ResultsErr != nil {
		return nil, a.ResultsErr
	}
	return a.ResultsBySID[sampleExternalLISID], nil
}

// SendResults records the batch and returns the scripted outcome.
func (a *Adapter) SendResults(_ context.Context, payloads []domain.ResultPayload) (domain.UploadOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	batch := make([]domain.ResultPayload, len(payloads))
	copy(batch, payloads)
	a.SentBatches = append(a.SentBatches, batch)
	if a.SendErr != nil {
		return domain.UploadOutcome{}, a.SendErr
	}
	out := a.SendOutcome
	if out.TotalSent == 0 && out.TotalFailed == 0 && len(out.FailedResultIDs) == 0 {
		out.TotalSent = len(payloads)
	}
	return out, nil
}

// AcknowledgeResults records the ids and returns the scripted answer.
func (a *Adapter) AcknowledgeResults(_ context.Context, externalLISResultIDs []string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, len(externalLISResultIDs))
	copy(ids, externalLISResultIDs)
	a.AckedIDs = append(a.AckedIDs, ids)
	if a.AckErr != nil {
		return false, a.AckErr
	}
	return a.AckOK, nil
}
