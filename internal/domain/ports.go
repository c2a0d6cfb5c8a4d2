package domain

import (
	"context"
	"time"
)

// Repository ports. Every lookup, list, and delete is tenant-scoped: a
// lookup with the wrong tenant returns ErrNotFound, never another tenant's
// row. Uniqueness violations surface as ErrConflict.

// SampleFilter narrows sample listings.
type SampleFilter struct {
	Status    SampleStatus
	PatientID string
	Limit     int
	Offset    int
}

// SampleRepository persists samples.
type SampleRepository interface {
	Create(ctx context.Context, s Sample) (string, error)
	GetByID(ctx context.Context, tenantID, id string) (Sample, error)
	GetByExternalLISID(ctx context.Context, tenantID, externalLISID string) (Sample, error)
	List(ctx context.Context, tenantID string, f SampleFilter) ([]Sample, error)
	Update(ctx context.Context, s Sample) error
	UpdateStatus(ctx context.Context, tenantID, id string, status SampleStatus) error
	Delete(ctx context.Context, tenantID, id string) error
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status    OrderStatus
	PatientID string
	SampleID  string
	Limit     int
}

// OrderRepository persists orders.
type OrderRepository interface {
	Create(ctx context.Context, o Order) (string, error)
	GetByID(ctx context.Context, tenantID, id string) (Order, error)
	GetByExternalLISOrderID(ctx context.Context, tenantID, externalID string) (Order, error)
	List(ctx context.Context, tenantID string, f OrderFilter) ([]Order, error)
	Update(ctx context.Context, o Order) error
	Delete(ctx context.Context, tenantID, id string) error
}

// ResultFilter narrows result listings.
type ResultFilter struct {
	VerificationStatus VerificationStatus
	UploadStatus       UploadStatus
	SampleID           string
	Limit              int
	Offset             int
}

// ResultRepository persists results. Verification immutability is enforced
// here: UpdateVerification fails with ErrImmutable once the stored status is
// terminal. Upload transitions remain open on terminal results, so they go
// through the separate UpdateUpload.
type ResultRepository interface {
	Create(ctx context.Context, r Result) (string, error)
	GetByID(ctx context.Context, tenantID, id string) (Result, error)
	GetByExternalLISResultID(ctx context.Context, tenantID, externalID string) (Result, error)
	GetByInstrumentResultID(ctx context.Context, tenantID, instrumentID, externalID string) (Result, error)
	List(ctx context.Context, tenantID string, f ResultFilter) ([]Result, error)
	ListBySample(ctx context.Context, tenantID, sampleID string) ([]Result, error)
	// ListUploadEligible returns pending-upload results whose verification
	// status is admitted by the flags, oldest created_at first.
	ListUploadEligible(ctx context.Context, tenantID string, includeVerified, includeRejected bool, limit int) ([]Result, error)
	// FindPrior returns the most recent result for (sampleID, testCode)
	// created on or after since, excluding excludeID. ErrNotFound when none.
	FindPrior(ctx context.Context, tenantID, sampleID, testCode, excludeID string, since time.Time) (Result, error)
	UpdateVerification(ctx context.Context, tenantID, id string, status VerificationStatus, method VerificationMethod) error
	UpdateUpload(ctx context.Context, r Result) error
}

// ReviewFilter narrows the review queue.
type ReviewFilter struct {
	State          ReviewState
	ReviewerUserID string
	EscalatedOnly  bool
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// ReviewRepository persists reviews. Update fails with ErrImmutable once the
// stored state is terminal.
type ReviewRepository interface {
	Create(ctx context.Context, v Review) (string, error)
	GetByID(ctx context.Context, tenantID, id string) (Review, error)
	GetBySampleID(ctx context.Context, tenantID, sampleID string) (Review, error)
	List(ctx context.Context, tenantID string, f ReviewFilter) ([]Review, error)
	Update(ctx context.Context, v Review) error
}

// DecisionRepository persists result decisions. Decisions are immutable;
// there is no update or delete.
type DecisionRepository interface {
	Create(ctx context.Context, d ResultDecision) (string, error)
	ListByReview(ctx context.Context, tenantID, reviewID string) ([]ResultDecision, error)
}

// SettingsRepository persists per-test-code auto-verification settings.
type SettingsRepository interface {
	Create(ctx context.Context, s AutoVerificationSettings) (string, error)
	GetByTestCode(ctx context.Context, tenantID, testCode string) (AutoVerificationSettings, error)
	List(ctx context.Context, tenantID string) ([]AutoVerificationSettings, error)
	Update(ctx context.Context, s AutoVerificationSettings) error
	Delete(ctx context.Context, tenantID, testCode string) error
}

// RuleRepository persists verification rule enablement.
type RuleRepository interface {
	Create(ctx context.Context, r VerificationRule) (string, error)
	GetByType(ctx context.Context, tenantID string, ruleType RuleType) (VerificationRule, error)
	// List returns the tenant's rules ordered by ascending priority.
	List(ctx context.Context, tenantID string) ([]VerificationRule, error)
	Update(ctx context.Context, r VerificationRule) error
}

// LISConfigRepository persists the single per-tenant LIS configuration.
// List is tenant-less: the background loops iterate every configured tenant.
type LISConfigRepository interface {
	Create(ctx context.Context, c LISConfig) (string, error)
	GetByTenant(ctx context.Context, tenantID string) (LISConfig, error)
	List(ctx context.Context) ([]LISConfig, error)
	Update(ctx context.Context, c LISConfig) error
}

// InstrumentRepository persists the instrument registry. GetByToken is the
// only tenant-less lookup in the system: the token is the sole identifier
// and the resolved instrument carries the tenant.
type InstrumentRepository interface {
	Create(ctx context.Context, i Instrument) (string, error)
	GetByID(ctx context.Context, tenantID, id string) (Instrument, error)
	GetByToken(ctx context.Context, token string) (Instrument, error)
	List(ctx context.Context, tenantID string) ([]Instrument, error)
	Update(ctx context.Context, i Instrument) error
	Delete(ctx context.Context, tenantID, id string) error
}

// InstrumentQueryRepository records immutable host-query audit rows.
type InstrumentQueryRepository interface {
	Create(ctx context.Context, q InstrumentQuery) (string, error)
	ListByInstrument(ctx context.Context, tenantID, instrumentID string, limit int) ([]InstrumentQuery, error)
}

// TenantRepository persists tenants.
type TenantRepository interface {
	Create(ctx context.Context, t Tenant) (string, error)
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
}

// UserRepository persists users. Email is unique per tenant.
type UserRepository interface {
	Create(ctx context.Context, u User) (string, error)
	GetByID(ctx context.Context, tenantID, id string) (User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (User, error)
}
