// Package memory provides in-memory realizations of every repository port.
// They back the repository contract tests and the USE_REAL_DATABASE=false
// development mode, and satisfy the same semantics as the postgres
// realizations: tenant scoping, uniqueness conflicts, and immutability.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verilab/verilab/internal/domain"
)

// Store is the shared state behind all in-memory repositories. One mutex
// guards everything; contention is irrelevant at test/dev scale.
type Store struct {
	mu sync.RWMutex

	samples     map[string]domain.Sample
	orders      map[string]domain.Order
	results     map[string]domain.Result
	reviews     map[string]domain.Review
	decisions   map[string]domain.ResultDecision
	settings    map[string]domain.AutoVerificationSettings
	rules       map[string]domain.VerificationRule
	lisConfigs  map[string]domain.LISConfig // keyed by tenant id
	instruments map[string]domain.Instrument
	queries     map[string]domain.InstrumentQuery
	tenants     map[string]domain.Tenant
	users       map[string]domain.User
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		samples:     map[string]domain.Sample{},
		orders:      map[string]domain.Order{},
		results:     map[string]domain.Result{},
		reviews:     map[string]domain.Review{},
		decisions:   map[string]domain.ResultDecision{},
		settings:    map[string]domain.AutoVerificationSettings{},
		rules:       map[string]domain.VerificationRule{},
		lisConfigs:  map[string]domain.LISConfig{},
		instruments: map[string]domain.Instrument{},
		queries:     map[string]domain.InstrumentQuery{},
		tenants:     map[string]domain.Tenant{},
		users:       map[string]domain.User{},
	}
}

// Repository accessors.

func (s *Store) Samples() domain.SampleRepository                    { return &sampleRepo{s} }
func (s *Store) Orders() domain.OrderRepository                      { return &orderRepo{s} }
func (s *Store) Results() domain.ResultRepository                    { return &resultRepo{s} }
func (s *Store) Reviews() domain.ReviewRepository                    { return &reviewRepo{s} }
func (s *Store) Decisions() domain.DecisionRepository                { return &decisionRepo{s} }
func (s *Store) Settings() domain.SettingsRepository                 { return &settingsRepo{s} }
func (s *Store) Rules() domain.RuleRepository                        { return &ruleRepo{s} }
func (s *Store) LISConfigs() domain.LISConfigRepository              { return &lisConfigRepo{s} }
func (s *Store) Instruments() domain.InstrumentRepository            { return &instrumentRepo{s} }
func (s *Store) InstrumentQueries() domain.InstrumentQueryRepository { return &queryRepo{s} }
func (s *Store) Tenants() domain.TenantRepository                    { return &tenantRepo{s} }
func (s *Store) Users() domain.UserRepository                        { return &userRepo{s} }

func newID() string { return uuid.New().String() }

func now() time.Time { return time.Now().UTC() }
