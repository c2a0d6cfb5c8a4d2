package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/adapter/repo/postgres"
	"github.com/verilab/verilab/internal/adapter/repo/repotest"
)

// TestContract runs the repository contract suite against a real database.
// Set TEST_DATABASE_URL to enable; each subtest gets a fresh schema.
func TestContract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	repotest.Run(t, func(t *testing.T) repotest.Repos {
		t.Helper()
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(pool.Close)

		schema := fmt.Sprintf("contract_%s", sanitize(t.Name()))
		_, err = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE; CREATE SCHEMA %s; SET search_path TO %s", schema, schema, schema))
		require.NoError(t, err)
		require.NoError(t, postgres.EnsureSchema(ctx, pool))

		return repotest.Repos{
			Samples:     postgres.NewSampleRepo(pool),
			Orders:      postgres.NewOrderRepo(pool),
			Results:     postgres.NewResultRepo(pool),
			Reviews:     postgres.NewReviewRepo(pool),
			Decisions:   postgres.NewDecisionRepo(pool),
			Settings:    postgres.NewSettingsRepo(pool),
			Rules:       postgres.NewRuleRepo(pool),
			LISConfigs:  postgres.NewLISConfigRepo(pool),
			Instruments: postgres.NewInstrumentRepo(pool),
			Queries:     postgres.NewInstrumentQueryRepo(pool),
			Tenants:     postgres.NewTenantRepo(pool),
			Users:       postgres.NewUserRepo(pool),
		}
	})
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
