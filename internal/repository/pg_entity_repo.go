package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/step-engine/internal/domain"
)

const subscriberColumns = `
	id, organization_id, environment_id, subscriber_id, first_name, last_name,
	email, phone, avatar, locale, data, is_online, last_online_at,
	created_at, updated_at`

type pgSubscriberRepository struct {
	pool *pgxpool.Pool
}

// NewPgSubscriberRepository returns a SubscriberRepository backed by PostgreSQL.
func NewPgSubscriberRepository(pool *pgxpool.Pool) SubscriberRepository {
	return &pgSubscriberRepository{pool: pool}
}

func (r *pgSubscriberRepository) FindBySubscriberID(ctx context.Context, environmentID, subscriberID string) (*domain.Subscriber, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+subscriberColumns+`
		FROM subscribers WHERE environment_id = $1 AND subscriber_id = $2`, environmentID, subscriberID)
	return r.scanOne(row, subscriberID)
}

func (r *pgSubscriberRepository) FindByID(ctx context.Context, environmentID, id string) (*domain.Subscriber, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+subscriberColumns+`
		FROM subscribers WHERE environment_id = $1 AND id = $2`, environmentID, id)
	return r.scanOne(row, id)
}

func (r *pgSubscriberRepository) scanOne(row pgx.Row, ref string) (*domain.Subscriber, error) {
	var s domain.Subscriber
	err := row.Scan(
		&s.ID, &s.OrganizationID, &s.EnvironmentID, &s.SubscriberID, &s.FirstName, &s.LastName,
		&s.Email, &s.Phone, &s.Avatar, &s.Locale, &s.Data, &s.IsOnline, &s.LastOnlineAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("subscriber %s", ref)
	}
	if err != nil {
		return nil, domain.LookupFailure(err, "find subscriber")
	}
	return &s, nil
}

type pgTemplateRepository struct {
	pool *pgxpool.Pool
}

// NewPgTemplateRepository returns a TemplateRepository backed by PostgreSQL.
func NewPgTemplateRepository(pool *pgxpool.Pool) TemplateRepository {
	return &pgTemplateRepository{pool: pool}
}

func (r *pgTemplateRepository) FindByID(ctx context.Context, templateID, environmentID string) (*domain.Template, error) {
	var t domain.Template
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, environment_id, name, critical,
		       preference_settings, steps, created_at, updated_at
		FROM notification_templates
		WHERE id = $1 AND environment_id = $2`, templateID, environmentID).Scan(
		&t.ID, &t.OrganizationID, &t.EnvironmentID, &t.Name, &t.Critical,
		&t.PreferenceSettings, &t.Steps, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("notification template %s", templateID)
	}
	if err != nil {
		return nil, domain.LookupFailure(err, "find notification template")
	}
	return &t, nil
}

type pgPreferenceRepository struct {
	pool *pgxpool.Pool
}

// NewPgPreferenceRepository returns a PreferenceRepository backed by PostgreSQL.
func NewPgPreferenceRepository(pool *pgxpool.Pool) PreferenceRepository {
	return &pgPreferenceRepository{pool: pool}
}

func (r *pgPreferenceRepository) FindForSubscriber(ctx context.Context, environmentID, subscriberID, templateID string) ([]domain.SubscriberPreference, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, environment_id, subscriber_id, template_id,
		       level, enabled, channels, created_at, updated_at
		FROM subscriber_preferences
		WHERE environment_id = $1 AND subscriber_id = $2
		  AND (level = 'global' OR (level = 'template' AND template_id = $3))
		ORDER BY CASE level WHEN 'global' THEN 0 ELSE 1 END`,
		environmentID, subscriberID, templateID)
	if err != nil {
		return nil, domain.LookupFailure(err, "find subscriber preferences")
	}
	defer rows.Close()

	var prefs []domain.SubscriberPreference
	for rows.Next() {
		var p domain.SubscriberPreference
		if err := rows.Scan(
			&p.ID, &p.OrganizationID, &p.EnvironmentID, &p.SubscriberID, &p.TemplateID,
			&p.Level, &p.Enabled, &p.Channels, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, domain.LookupFailure(err, "scan subscriber preference")
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.LookupFailure(err, "iterate subscriber preferences")
	}
	return prefs, nil
}
