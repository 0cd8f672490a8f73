package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/step-engine/internal/domain"
)

type pgExecutionDetailRepository struct {
	pool *pgxpool.Pool
}

// NewPgExecutionDetailRepository returns an append-only
// ExecutionDetailRepository backed by PostgreSQL.
func NewPgExecutionDetailRepository(pool *pgxpool.Pool) ExecutionDetailRepository {
	return &pgExecutionDetailRepository{pool: pool}
}

func (r *pgExecutionDetailRepository) Create(ctx context.Context, d *domain.ExecutionDetail) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO execution_details
			(id, job_id, notification_id, transaction_id, organization_id, environment_id,
			 subscriber_id, template_id, provider_id, channel, detail, source, status,
			 is_test, is_retry, raw, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		d.ID, d.JobID, d.NotificationID, d.TransactionID, d.OrganizationID, d.EnvironmentID,
		d.SubscriberID, d.TemplateID, d.ProviderID, d.Channel, d.Detail, d.Source, d.Status,
		d.IsTest, d.IsRetry, d.Raw, d.CreatedAt,
	)
	if err != nil {
		return domain.LookupFailure(err, "insert execution detail")
	}
	return nil
}

func (r *pgExecutionDetailRepository) ListByJob(ctx context.Context, jobID string) ([]*domain.ExecutionDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, notification_id, transaction_id, organization_id, environment_id,
		       subscriber_id, template_id, provider_id, channel, detail, source, status,
		       is_test, is_retry, raw, created_at
		FROM execution_details WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, domain.LookupFailure(err, "list execution details")
	}
	defer rows.Close()

	var details []*domain.ExecutionDetail
	for rows.Next() {
		var d domain.ExecutionDetail
		if err := rows.Scan(
			&d.ID, &d.JobID, &d.NotificationID, &d.TransactionID, &d.OrganizationID, &d.EnvironmentID,
			&d.SubscriberID, &d.TemplateID, &d.ProviderID, &d.Channel, &d.Detail, &d.Source, &d.Status,
			&d.IsTest, &d.IsRetry, &d.Raw, &d.CreatedAt,
		); err != nil {
			return nil, domain.LookupFailure(err, "scan execution detail")
		}
		details = append(details, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.LookupFailure(err, "iterate execution details")
	}
	return details, nil
}
