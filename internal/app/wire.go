package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	lismock "github.com/verilab/verilab/internal/adapter/lis/mock"
	"github.com/verilab/verilab/internal/adapter/repo/memory"
	"github.com/verilab/verilab/internal/adapter/repo/postgres"
	"github.com/verilab/verilab/internal/config"
	"github.com/verilab/verilab/internal/domain"
	"github.com/verilab/verilab/internal/usecase"
)

// Repos bundles every repository port so the server and worker binaries
// share one wiring path.
type Repos struct {
	Tenants           domain.TenantRepository
	Users             domain.UserRepository
	Samples           domain.SampleRepository
	Orders            domain.OrderRepository
	Results           domain.ResultRepository
	Reviews           domain.ReviewRepository
	Decisions         domain.DecisionRepository
	Settings          domain.SettingsRepository
	Rules             domain.RuleRepository
	LISConfigs        domain.LISConfigRepository
	Instruments       domain.InstrumentRepository
	InstrumentQueries domain.InstrumentQueryRepository
}

// BuildRepos selects the repository realization: postgres when a pool is
// given, the in-memory store otherwise.
func BuildRepos(pool *pgxpool.Pool) Repos {
	if pool == nil {
		st := memory.NewStore()
		return Repos{
			Tenants:           st.Tenants(),
			Users:             st.Users(),
			Samples:           st.Samples(),
			Orders:            st.Orders(),
			Results:           st.Results(),
			Reviews:           st.Reviews(),
			Decisions:         st.Decisions(),
			Settings:          st.Settings(),
			Rules:             st.Rules(),
			LISConfigs:        st.LISConfigs(),
			Instruments:       st.Instruments(),
			InstrumentQueries: st.InstrumentQueries(),
		}
	}
	return Repos{
		Tenants:           postgres.NewTenantRepo(pool),
		Users:             postgres.NewUserRepo(pool),
		Samples:           postgres.NewSampleRepo(pool),
		Orders:            postgres.NewOrderRepo(pool),
		Results:           postgres.NewResultRepo(pool),
		Reviews:           postgres.NewReviewRepo(pool),
		Decisions:         postgres.NewDecisionRepo(pool),
		Settings:          postgres.NewSettingsRepo(pool),
		Rules:             postgres.NewRuleRepo(pool),
		LISConfigs:        postgres.NewLISConfigRepo(pool),
		Instruments:       postgres.NewInstrumentRepo(pool),
		InstrumentQueries: postgres.NewInstrumentQueryRepo(pool),
	}
}

// Services bundles the constructed use-case layer.
type Services struct {
	Identity    *usecase.IdentityService
	Samples     *usecase.SampleService
	Results     *usecase.ResultService
	Verify      *usecase.VerificationService
	Review      *usecase.ReviewService
	LIS         *usecase.LISService
	Instruments *usecase.InstrumentService
	Settings    *usecase.SettingsService
}

// BuildServices wires the use-case layer over the repositories. The LIS
// adapter is pluggable per deployment; the scripted adapter stands in until
// a tenant-specific connector is configured.
func BuildServices(cfg config.Config, r Repos, lisAdapter domain.LISAdapter) Services {
	if lisAdapter == nil {
		lisAdapter = lismock.New()
	}
	settings := usecase.NewSettingsService(r.Settings, r.Rules)
	verify := usecase.NewVerificationService(r.Results, r.Samples, r.Settings, r.Rules, r.Reviews, cfg.EnableAutoVerification, cfg.EnableDeltaCheck)
	return Services{
		Identity:    usecase.NewIdentityService(r.Tenants, r.Users, settings, cfg.SecretKey, cfg.TokenLifetime),
		Samples:     usecase.NewSampleService(r.Samples),
		Results:     usecase.NewResultService(r.Results, r.Samples, verify),
		Verify:      verify,
		Review:      usecase.NewReviewService(r.Reviews, r.Decisions, r.Results, r.Samples, cfg.EnableReviewEscalation),
		LIS:         usecase.NewLISService(r.LISConfigs, r.Samples, r.Results, lisAdapter, cfg.RetryMaxRetries),
		Instruments: usecase.NewInstrumentService(r.Instruments, r.InstrumentQueries, r.Orders, r.Results, r.Samples, verify),
		Settings:    settings,
	}
}

// Connect opens the postgres pool and ensures the schema when
// USE_REAL_DATABASE is set; otherwise it returns a nil pool for the
// in-memory mode.
func Connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if !cfg.UseRealDatabase {
		slog.Info("running on in-memory repositories")
		return nil, nil
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
