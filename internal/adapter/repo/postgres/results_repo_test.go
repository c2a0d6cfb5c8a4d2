package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/adapter/repo/postgres"
	"github.com/verilab/verilab/internal/domain"
)

func TestResultRepo_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  domain.Result
		pool    *poolStub
		wantErr error
	}{
		{
			name:   "successful create generates id",
			result: domain.Result{TenantID: "t1", TestCode: "GLU", Value: "85"},
			pool:   &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")},
		},
		{
			name:    "missing tenant is invalid",
			result:  domain.Result{TestCode: "GLU", Value: "85"},
			pool:    &poolStub{},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "missing test code is invalid",
			result:  domain.Result{TenantID: "t1", Value: "85"},
			pool:    &poolStub{},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "unique violation maps to conflict",
			result:  domain.Result{TenantID: "t1", TestCode: "GLU", Value: "85"},
			pool:    &poolStub{execErr: &pgconn.PgError{Code: "23505"}},
			wantErr: domain.ErrConflict,
		},
		{
			name:    "driver error is wrapped",
			result:  domain.Result{TenantID: "t1", TestCode: "GLU", Value: "85"},
			pool:    &poolStub{execErr: assert.AnError},
			wantErr: assert.AnError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := postgres.NewResultRepo(tt.pool)
			id, err := repo.Create(context.Background(), tt.result)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, id)
		})
	}
}

func TestResultRepo_GetByID_NotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewResultRepo(pool)
	_, err := repo.GetByID(context.Background(), "t1", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=result.get")
}

func TestResultRepo_UpdateVerification_Immutable(t *testing.T) {
	t.Parallel()
	// Zero rows matched but the row exists: the stored status is terminal.
	pool := &poolStub{
		execTag: pgconn.NewCommandTag("UPDATE 0"),
		row:     rowStub{scan: func(_ ...any) error { return nil }},
	}
	repo := postgres.NewResultRepo(pool)
	err := repo.UpdateVerification(context.Background(), "t1", "r1", domain.VerificationRejected, domain.MethodManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrImmutable)
}

func TestResultRepo_UpdateVerification_NotFound(t *testing.T) {
	t.Parallel()
	// Zero rows matched and the row does not exist at all.
	pool := &poolStub{
		execTag: pgconn.NewCommandTag("UPDATE 0"),
		row:     rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }},
	}
	repo := postgres.NewResultRepo(pool)
	err := repo.UpdateVerification(context.Background(), "t1", "missing", domain.VerificationVerified, domain.MethodAuto)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResultRepo_UpdateUpload(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewResultRepo(pool)
	err := repo.UpdateUpload(context.Background(), domain.Result{
		ID: "r1", TenantID: "t1", UploadStatus: domain.UploadSent,
	})
	require.NoError(t, err)
}

func TestResultRepo_List_QueryError(t *testing.T) {
	t.Parallel()
	pool := &poolStub{queryErr: assert.AnError}
	repo := postgres.NewResultRepo(pool)
	_, err := repo.List(context.Background(), "t1", domain.ResultFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=result.list")
}

func TestResultRepo_ListUploadEligible_Empty(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	repo := postgres.NewResultRepo(pool)
	out, err := repo.ListUploadEligible(context.Background(), "t1", true, false, 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}
