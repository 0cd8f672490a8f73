package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/step-engine/internal/domain"
)

const jobColumns = `
	id, transaction_id, notification_id, organization_id, environment_id,
	user_id, subscriber_id, external_subscriber_id, template_id, provider_id,
	type, step, payload, digest, delay, status, error, claimed_at,
	created_at, updated_at`

type pgJobRepository struct {
	pool     *pgxpool.Pool
	claimTTL time.Duration
}

// NewPgJobRepository returns a JobRepository backed by PostgreSQL. A claim
// older than claimTTL is treated as abandoned and may be taken again.
func NewPgJobRepository(pool *pgxpool.Pool, claimTTL time.Duration) JobRepository {
	return &pgJobRepository{pool: pool, claimTTL: claimTTL}
}

func (r *pgJobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("job %s", id)
	}
	if err != nil {
		return nil, domain.LookupFailure(err, "get job")
	}
	return j, nil
}

// UpdateStatus only touches pending rows, or rows already carrying the
// target status. Anything else is a forbidden backwards transition.
func (r *pgJobRepository) UpdateStatus(ctx context.Context, organizationID, id string, status domain.JobStatus) error {
	if !status.IsValid() {
		return errors.Wrapf(domain.ErrInvalidStatus, "status %q", status)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3
		  AND (status = 'pending' OR status = $1)`,
		status, id, organizationID)
	if err != nil {
		return domain.LookupFailure(err, "update job status")
	}
	if tag.RowsAffected() == 0 {
		return r.explainNoop(ctx, organizationID, id, status)
	}
	return nil
}

func (r *pgJobRepository) MarkFailed(ctx context.Context, organizationID, id, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'failed', error = $1, claimed_at = NULL, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3 AND status IN ('pending', 'failed')`,
		errMsg, id, organizationID)
	if err != nil {
		return domain.LookupFailure(err, "mark job failed")
	}
	if tag.RowsAffected() == 0 {
		return r.explainNoop(ctx, organizationID, id, domain.JobFailed)
	}
	return nil
}

func (r *pgJobRepository) Claim(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET claimed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		  AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))`,
		id, r.claimTTL.Seconds())
	if err != nil {
		return domain.LookupFailure(err, "claim job")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrJobNotDispatchable, "job %s", id)
	}
	return nil
}

// ClaimPending uses SKIP LOCKED so several engine instances can sweep the
// same table without handing out a job twice. Stale claims left by a crashed
// or stopped process are picked up again.
func (r *pgJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE jobs SET claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'pending'
			  AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, limit, r.claimTTL.Seconds())
	if err != nil {
		return nil, domain.LookupFailure(err, "claim pending jobs")
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, domain.LookupFailure(err, "scan claimed jobs")
	}
	return jobs, nil
}

func (r *pgJobRepository) ReleaseClaim(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET claimed_at = NULL WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return domain.LookupFailure(err, "release job claim")
	}
	return nil
}

// explainNoop turns a zero-row update into ErrNotFound or ErrInvalidStatus.
func (r *pgJobRepository) explainNoop(ctx context.Context, organizationID, id string, want domain.JobStatus) error {
	var current domain.JobStatus
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM jobs WHERE id = $1 AND organization_id = $2`, id, organizationID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound("job %s", id)
	}
	if err != nil {
		return domain.LookupFailure(err, "read job status")
	}
	return errors.Wrapf(domain.ErrInvalidStatus, "job %s: %s -> %s", id, current, want)
}

// ---- helpers ----

// scanJob reads a single job row from any pgx row type.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.TransactionID, &j.NotificationID, &j.OrganizationID, &j.EnvironmentID,
		&j.UserID, &j.SubscriberID, &j.ExternalSubscriberID, &j.TemplateID, &j.ProviderID,
		&j.Type, &j.Step, &j.Payload, &j.Digest, &j.Delay, &j.Status, &j.Error, &j.ClaimedAt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var result []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}
