package httpserver

import (
	"time"

	"github.com/verilab/verilab/internal/domain"
	"github.com/verilab/verilab/internal/usecase"
)

// Wire representations. Handlers never encode domain structs directly so the
// JSON surface stays stable when internals move.

type userDTO struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserDTO(u domain.User) userDTO {
	return userDTO{ID: u.ID, TenantID: u.TenantID, Email: u.Email, FullName: u.FullName, Role: string(u.Role), CreatedAt: u.CreatedAt}
}

type tenantDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

func toTenantDTO(t domain.Tenant) tenantDTO {
	return tenantDTO{ID: t.ID, Name: t.Name, Slug: t.Slug, CreatedAt: t.CreatedAt}
}

type sampleDTO struct {
	ID             string     `json:"id"`
	ExternalLISID  string     `json:"external_lis_id"`
	PatientID      string     `json:"patient_id"`
	SpecimenType   string     `json:"specimen_type"`
	CollectionDate *time.Time `json:"collection_date,omitempty"`
	ReceivedDate   *time.Time `json:"received_date,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toSampleDTO(s domain.Sample) sampleDTO {
	d := sampleDTO{
		ID:            s.ID,
		ExternalLISID: s.ExternalLISID,
		PatientID:     s.PatientID,
		SpecimenType:  s.SpecimenType,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if !s.CollectionDate.IsZero() {
		t := s.CollectionDate
		d.CollectionDate = &t
	}
	if !s.ReceivedDate.IsZero() {
		t := s.ReceivedDate
		d.ReceivedDate = &t
	}
	return d
}

func toSampleDTOs(in []domain.Sample) []sampleDTO {
	out := make([]sampleDTO, 0, len(in))
	for _, s := range in {
		out = append(out, toSampleDTO(s))
	}
	return out
}

type resultDTO struct {
	ID                  string     `json:"id"`
	ExternalLISResultID string     `json:"external_lis_result_id,omitempty"`
	SampleID            string     `json:"sample_id,omitempty"`
	TestCode            string     `json:"test_code"`
	TestName            string     `json:"test_name,omitempty"`
	Value               string     `json:"value"`
	Unit                string     `json:"unit,omitempty"`
	ReferenceRangeLow   *float64   `json:"reference_range_low,omitempty"`
	ReferenceRangeHigh  *float64   `json:"reference_range_high,omitempty"`
	LISFlags            string     `json:"lis_flags,omitempty"`
	InstrumentID        string     `json:"instrument_id,omitempty"`
	VerificationStatus  string     `json:"verification_status"`
	VerificationMethod  string     `json:"verification_method,omitempty"`
	UploadStatus        string     `json:"upload_status"`
	UploadFailureCount  int        `json:"upload_failure_count"`
	UploadFailureReason string     `json:"upload_failure_reason,omitempty"`
	SentToLISAt         *time.Time `json:"sent_to_lis_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toResultDTO(r domain.Result) resultDTO {
	return resultDTO{
		ID:                  r.ID,
		ExternalLISResultID: r.ExternalLISResultID,
		SampleID:            r.SampleID,
		TestCode:            r.TestCode,
		TestName:            r.TestName,
		Value:               r.Value,
		Unit:                r.Unit,
		ReferenceRangeLow:   r.ReferenceRangeLow,
		ReferenceRangeHigh:  r.ReferenceRangeHigh,
		LISFlags:            r.LISFlags,
		InstrumentID:        r.InstrumentID,
		VerificationStatus:  string(r.VerificationStatus),
		VerificationMethod:  string(r.VerificationMethod),
		UploadStatus:        string(r.UploadStatus),
		UploadFailureCount:  r.UploadFailureCount,
		UploadFailureReason: r.UploadFailureReason,
		SentToLISAt:         r.SentToLISAt,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func toResultDTOs(in []domain.Result) []resultDTO {
	out := make([]resultDTO, 0, len(in))
	for _, r := range in {
		out = append(out, toResultDTO(r))
	}
	return out
}

type reviewDTO struct {
	ID               string     `json:"id"`
	SampleID         string     `json:"sample_id"`
	State            string     `json:"state"`
	Decision         string     `json:"decision,omitempty"`
	ReviewerUserID   string     `json:"reviewer_user_id,omitempty"`
	Comments         string     `json:"comments,omitempty"`
	EscalationReason string     `json:"escalation_reason,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toReviewDTO(v domain.Review) reviewDTO {
	return reviewDTO{
		ID:               v.ID,
		SampleID:         v.SampleID,
		State:            string(v.State),
		Decision:         string(v.Decision),
		ReviewerUserID:   v.ReviewerUserID,
		Comments:         v.Comments,
		EscalationReason: v.EscalationReason,
		SubmittedAt:      v.SubmittedAt,
		CompletedAt:      v.CompletedAt,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

func toReviewDTOs(in []domain.Review) []reviewDTO {
	out := make([]reviewDTO, 0, len(in))
	for _, v := range in {
		out = append(out, toReviewDTO(v))
	}
	return out
}

type lisConfigDTO struct {
	ID                      string     `json:"id"`
	LISType                 string     `json:"lis_type"`
	IntegrationModel        string     `json:"integration_model"`
	APIEndpointURL          string     `json:"api_endpoint_url,omitempty"`
	TenantAPIKey            string     `json:"tenant_api_key,omitempty"`
	PullIntervalMinutes     int        `json:"pull_interval_minutes"`
	ConnectionStatus        string     `json:"connection_status"`
	ConnectionFailureCount  int        `json:"connection_failure_count"`
	UploadFailureCount      int        `json:"upload_failure_count"`
	LastTestedAt            *time.Time `json:"last_tested_at,omitempty"`
	LastSuccessfulRetrieval *time.Time `json:"last_successful_retrieval,omitempty"`
	LastSuccessfulUploadAt  *time.Time `json:"last_successful_upload_at,omitempty"`
	LastUploadFailureAt     *time.Time `json:"last_upload_failure_at,omitempty"`
	AutoUploadEnabled       bool       `json:"auto_upload_enabled"`
	UploadVerifiedResults   bool       `json:"upload_verified_results"`
	UploadRejectedResults   bool       `json:"upload_rejected_results"`
	UploadBatchSize         int        `json:"upload_batch_size"`
	UploadRateLimit         int        `json:"upload_rate_limit"`
}

func toLISConfigDTO(c domain.LISConfig) lisConfigDTO {
	return lisConfigDTO{
		ID:                      c.ID,
		LISType:                 c.LISType,
		IntegrationModel:        string(c.IntegrationModel),
		APIEndpointURL:          c.APIEndpointURL,
		TenantAPIKey:            c.TenantAPIKey,
		PullIntervalMinutes:     c.PullIntervalMinutes,
		ConnectionStatus:        string(c.ConnectionStatus),
		ConnectionFailureCount:  c.ConnectionFailureCount,
		UploadFailureCount:      c.UploadFailureCount,
		LastTestedAt:            c.LastTestedAt,
		LastSuccessfulRetrieval: c.LastSuccessfulRetrieval,
		LastSuccessfulUploadAt:  c.LastSuccessfulUploadAt,
		LastUploadFailureAt:     c.LastUploadFailureAt,
		AutoUploadEnabled:       c.AutoUploadEnabled,
		UploadVerifiedResults:   c.UploadVerifiedResults,
		UploadRejectedResults:   c.UploadRejectedResults,
		UploadBatchSize:         c.UploadBatchSize,
		UploadRateLimit:         c.UploadRateLimit,
	}
}

type instrumentDTO struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	InstrumentType         string     `json:"instrument_type,omitempty"`
	Status                 string     `json:"status"`
	APIToken               string     `json:"api_token,omitempty"`
	APITokenCreatedAt      *time.Time `json:"api_token_created_at,omitempty"`
	IsHealthy              bool       `json:"is_healthy"`
	ConnectionFailureCount int        `json:"connection_failure_count"`
	LastSuccessfulQueryAt  *time.Time `json:"last_successful_query_at,omitempty"`
	LastSuccessfulResultAt *time.Time `json:"last_successful_result_at,omitempty"`
	LastFailureAt          *time.Time `json:"last_failure_at,omitempty"`
	LastFailureReason      string     `json:"last_failure_reason,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// toInstrumentDTO renders an instrument; the token is included only when
// withToken is set (registration and token rotation responses).
func toInstrumentDTO(i domain.Instrument, withToken bool) instrumentDTO {
	d := instrumentDTO{
		ID:                     i.ID,
		Name:                   i.Name,
		InstrumentType:         i.InstrumentType,
		Status:                 string(i.Status),
		APITokenCreatedAt:      i.APITokenCreatedAt,
		IsHealthy:              i.IsHealthy(),
		ConnectionFailureCount: i.ConnectionFailureCount,
		LastSuccessfulQueryAt:  i.LastSuccessfulQueryAt,
		LastSuccessfulResultAt: i.LastSuccessfulResultAt,
		LastFailureAt:          i.LastFailureAt,
		LastFailureReason:      i.LastFailureReason,
		CreatedAt:              i.CreatedAt,
	}
	if withToken {
		d.APIToken = i.APIToken
	}
	return d
}

type settingsDTO struct {
	ID                         string    `json:"id"`
	TestCode                   string    `json:"test_code"`
	ReferenceRangeLow          *float64  `json:"reference_range_low,omitempty"`
	ReferenceRangeHigh         *float64  `json:"reference_range_high,omitempty"`
	CriticalRangeLow           *float64  `json:"critical_range_low,omitempty"`
	CriticalRangeHigh          *float64  `json:"critical_range_high,omitempty"`
	InstrumentFlagsToBlock     []string  `json:"instrument_flags_to_block"`
	DeltaCheckThresholdPercent *float64  `json:"delta_check_threshold_percent,omitempty"`
	DeltaCheckLookbackDays     int       `json:"delta_check_lookback_days,omitempty"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

func toSettingsDTO(s domain.AutoVerificationSettings) settingsDTO {
	flags := s.InstrumentFlagsToBlock
	if flags == nil {
		flags = []string{}
	}
	return settingsDTO{
		ID:                         s.ID,
		TestCode:                   s.TestCode,
		ReferenceRangeLow:          s.ReferenceRangeLow,
		ReferenceRangeHigh:         s.ReferenceRangeHigh,
		CriticalRangeLow:           s.CriticalRangeLow,
		CriticalRangeHigh:          s.CriticalRangeHigh,
		InstrumentFlagsToBlock:     flags,
		DeltaCheckThresholdPercent: s.DeltaCheckThresholdPercent,
		DeltaCheckLookbackDays:     s.DeltaCheckLookbackDays,
		CreatedAt:                  s.CreatedAt,
		UpdatedAt:                  s.UpdatedAt,
	}
}

type ruleDTO struct {
	RuleType    string `json:"rule_type"`
	Enabled     bool   `json:"enabled"`
	Priority    int    `json:"priority"`
	Description string `json:"description,omitempty"`
}

func toRuleDTO(r domain.VerificationRule) ruleDTO {
	return ruleDTO{RuleType: string(r.RuleType), Enabled: r.Enabled, Priority: r.Priority, Description: r.Description}
}

func toRuleDTOs(in []domain.VerificationRule) []ruleDTO {
	out := make([]ruleDTO, 0, len(in))
	for _, r := range in {
		out = append(out, toRuleDTO(r))
	}
	return out
}

type orderDTO struct {
	OrderID            string   `json:"order_id"`
	ExternalLISOrderID string   `json:"external_lis_order_id,omitempty"`
	SampleID           string   `json:"sample_id,omitempty"`
	SampleBarcode      string   `json:"sample_barcode,omitempty"`
	PatientID          string   `json:"patient_id,omitempty"`
	TestCodes          []string `json:"test_codes"`
	Priority           string   `json:"priority,omitempty"`
}

func toOrderDTOs(in []domain.OrderData) []orderDTO {
	out := make([]orderDTO, 0, len(in))
	for _, o := range in {
		codes := o.TestCodes
		if codes == nil {
			codes = []string{}
		}
		out = append(out, orderDTO{
			OrderID:            o.OrderID,
			ExternalLISOrderID: o.ExternalLISOrderID,
			SampleID:           o.SampleID,
			SampleBarcode:      o.SampleBarcode,
			PatientID:          o.PatientID,
			TestCodes:          codes,
			Priority:           string(o.Priority),
		})
	}
	return out
}

type queryAuditDTO struct {
	ID                  string    `json:"id"`
	InstrumentID        string    `json:"instrument_id"`
	QueryTimestamp      time.Time `json:"query_timestamp"`
	ResponseTimestamp   time.Time `json:"response_timestamp"`
	ResponseTimeMS      int64     `json:"response_time_ms"`
	OrdersReturnedCount int       `json:"orders_returned_count"`
	ResponseStatus      string    `json:"response_status"`
	QueryPatientID      string    `json:"query_patient_id,omitempty"`
	QuerySampleBarcode  string    `json:"query_sample_barcode,omitempty"`
	ErrorReason         string    `json:"error_reason,omitempty"`
}

func toQueryAuditDTOs(in []domain.InstrumentQuery) []queryAuditDTO {
	out := make([]queryAuditDTO, 0, len(in))
	for _, q := range in {
		out = append(out, queryAuditDTO{
			ID:                  q.ID,
			InstrumentID:        q.InstrumentID,
			QueryTimestamp:      q.QueryTimestamp,
			ResponseTimestamp:   q.ResponseTimestamp,
			ResponseTimeMS:      q.ResponseTimeMS,
			OrdersReturnedCount: q.OrdersReturnedCount,
			ResponseStatus:      string(q.ResponseStatus),
			QueryPatientID:      q.QueryPatientID,
			QuerySampleBarcode:  q.QuerySampleBarcode,
			ErrorReason:         q.ErrorReason,
		})
	}
	return out
}

type batchReportDTO struct {
	Total       int `json:"total"`
	Verified    int `json:"verified"`
	NeedsReview int `json:"needs_review"`
	Errors      int `json:"errors"`
}

func toBatchReportDTO(o usecase.BatchOutcome) batchReportDTO {
	return batchReportDTO{Total: o.Total, Verified: o.Verified, NeedsReview: o.NeedsReview, Errors: o.Errors}
}
