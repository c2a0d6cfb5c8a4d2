package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/verilab/verilab/internal/domain"
)

// OrderRepo persists orders in PostgreSQL. Test codes are a JSON array in a
// text column.
type OrderRepo struct{ Pool PgxPool }

// NewOrderRepo constructs an OrderRepo with the given pool.
func NewOrderRepo(p PgxPool) *OrderRepo { return &OrderRepo{Pool: p} }

const orderCols = `id, tenant_id, external_lis_order_id, sample_id, patient_id, test_codes,
	priority, status, assigned_instrument_id, assigned_at, completed_at, created_at, updated_at`

func encodeJSONList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSONList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode json list: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var codes string
	err := row.Scan(&o.ID, &o.TenantID, &o.ExternalLISOrderID, &o.SampleID, &o.PatientID, &codes,
		&o.Priority, &o.Status, &o.AssignedInstrumentID, &o.AssignedAt, &o.CompletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.TestCodes, err = decodeJSONList(codes)
	return o, err
}

// Create inserts a new order and returns its id.
func (r *OrderRepo) Create(ctx context.Context, o domain.Order) (string, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.Create")
	defer span.End()
	if o.TenantID == "" || o.ExternalLISOrderID == "" {
		return "", mapErr("order.create", fmt.Errorf("%w: tenant_id and external_lis_order_id required", domain.ErrInvalidArgument))
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	if o.Priority == "" {
		o.Priority = domain.PriorityRoutine
	}
	codes, err := encodeJSONList(o.TestCodes)
	if err != nil {
		return "", mapErr("order.create", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO orders (id, tenant_id, external_lis_order_id, sample_id, patient_id, test_codes,
		priority, status, assigned_instrument_id, assigned_at, completed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = r.Pool.Exec(ctx, q, o.ID, o.TenantID, o.ExternalLISOrderID, o.SampleID, o.PatientID, codes,
		o.Priority, o.Status, o.AssignedInstrumentID, o.AssignedAt, o.CompletedAt, now, now)
	if err != nil {
		return "", mapErr("order.create", err)
	}
	return o.ID, nil
}

// GetByID loads an order scoped by tenant.
func (r *OrderRepo) GetByID(ctx context.Context, tenantID, id string) (domain.Order, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.GetByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	o, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, mapErr("order.get", err)
	}
	return o, nil
}

// GetByExternalLISOrderID loads an order by its LIS identifier.
func (r *OrderRepo) GetByExternalLISOrderID(ctx context.Context, tenantID, externalID string) (domain.Order, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.GetByExternalLISOrderID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE external_lis_order_id=$1 AND tenant_id=$2`, externalID, tenantID)
	o, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, mapErr("order.get_external", err)
	}
	return o, nil
}

// List returns orders for a tenant, oldest first so dispatch is FIFO.
func (r *OrderRepo) List(ctx context.Context, tenantID string, f domain.OrderFilter) ([]domain.Order, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.List")
	defer span.End()
	q := `SELECT ` + orderCols + ` FROM orders WHERE tenant_id=$1
		AND ($2 = '' OR status = $2)
		AND ($3 = '' OR patient_id = $3)
		AND ($4 = '' OR sample_id = $4)
		ORDER BY created_at ASC
		LIMIT CASE WHEN $5 > 0 THEN $5 ELSE NULL END`
	rows, err := r.Pool.Query(ctx, q, tenantID, string(f.Status), f.PatientID, f.SampleID, f.Limit)
	if err != nil {
		return nil, mapErr("order.list", err)
	}
	defer rows.Close()
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapErr("order.list", err)
		}
		out = append(out, o)
	}
	return out, mapErr("order.list", rows.Err())
}

// Update writes the mutable order fields.
func (r *OrderRepo) Update(ctx context.Context, o domain.Order) error {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.Update")
	defer span.End()
	codes, err := encodeJSONList(o.TestCodes)
	if err != nil {
		return mapErr("order.update", err)
	}
	q := `UPDATE orders SET test_codes=$3, priority=$4, status=$5, assigned_instrument_id=$6,
		assigned_at=$7, completed_at=$8, updated_at=$9 WHERE id=$1 AND tenant_id=$2`
	tag, err := r.Pool.Exec(ctx, q, o.ID, o.TenantID, codes, o.Priority, o.Status,
		o.AssignedInstrumentID, o.AssignedAt, o.CompletedAt, time.Now().UTC())
	return mustAffect("order.update", tag, err)
}

// Delete removes an order.
func (r *OrderRepo) Delete(ctx context.Context, tenantID, id string) error {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM orders WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	return mustAffect("order.delete", tag, err)
}
