package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type consentRepo struct{ q querier }

const consentCols = `id, key, title, entity_type, is_required, created_at`

const versionedCols = `c.id, c.key, c.title, c.entity_type, c.is_required, c.created_at,
	v.id, v.consent_id, v.version, v.status, v.body, v.published_at, v.created_at`

func scanConsent(row pgx.Row) (*repository.Consent, error) {
	var c repository.Consent
	var kind string
	if err := row.Scan(&c.ID, &c.Key, &c.Title, &kind, &c.IsRequired, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.EntityType = repository.EntityKind(kind)
	return &c, nil
}

func scanVersioned(row pgx.Row) (*repository.VersionedConsent, error) {
	var vc repository.VersionedConsent
	var kind, status string
	if err := row.Scan(&vc.Consent.ID, &vc.Consent.Key, &vc.Consent.Title, &kind, &vc.Consent.IsRequired, &vc.Consent.CreatedAt,
		&vc.Version.ID, &vc.Version.ConsentID, &vc.Version.Version, &status, &vc.Version.Body,
		&vc.Version.PublishedAt, &vc.Version.CreatedAt); err != nil {
		return nil, err
	}
	vc.Consent.EntityType = repository.EntityKind(kind)
	vc.Version.Status = repository.ConsentVersionStatus(status)
	return &vc, nil
}

func (r *consentRepo) CreateConsent(ctx context.Context, def repository.ConsentDefinition) (*repository.Consent, error) {
	c, err := scanConsent(r.q.QueryRow(ctx, `
		INSERT INTO consents (key, title, entity_type, is_required)
		VALUES ($1, $2, $3, $4)
		RETURNING `+consentCols, def.Key, def.Title, string(def.EntityType), def.IsRequired))
	if err != nil {
		return nil, wrapErr("create consent", err)
	}
	return c, nil
}

func (r *consentRepo) EnsureConsent(ctx context.Context, def repository.ConsentDefinition, at time.Time) (*repository.Consent, bool, error) {
	var (
		out     *repository.Consent
		created bool
	)
	err := withTx(ctx, r.q, func(tx pgx.Tx) error {
		c, err := scanConsent(tx.QueryRow(ctx, `
			INSERT INTO consents (key, title, entity_type, is_required)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (entity_type, key) DO NOTHING
			RETURNING `+consentCols, def.Key, def.Title, string(def.EntityType), def.IsRequired))
		if err == pgx.ErrNoRows {
			c, err = scanConsent(tx.QueryRow(ctx, `SELECT `+consentCols+` FROM consents WHERE entity_type = $1 AND key = $2`,
				string(def.EntityType), def.Key))
			if err != nil {
				return wrapErr("get consent", err)
			}
			out = c
			return nil
		}
		if err != nil {
			return wrapErr("ensure consent", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO consent_versions (consent_id, version, status, body, published_at)
			VALUES ($1, 1, 'ACTIVE', $2, $3)`, c.ID, def.Body, at); err != nil {
			return wrapErr("create consent version", err)
		}
		out, created = c, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (r *consentRepo) GetConsent(ctx context.Context, id int64) (*repository.Consent, error) {
	c, err := scanConsent(r.q.QueryRow(ctx, `SELECT `+consentCols+` FROM consents WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get consent", err)
	}
	return c, nil
}

func (r *consentRepo) PublishVersion(ctx context.Context, consentID int64, body string, at time.Time) (*repository.ConsentVersion, error) {
	var out repository.ConsentVersion
	err := withTx(ctx, r.q, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `SELECT id FROM consents WHERE id = $1 FOR UPDATE`, consentID).Scan(&id); err != nil {
			return wrapErr("lock consent", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE consent_versions SET status = 'ARCHIVED'
			WHERE consent_id = $1 AND status = 'ACTIVE'`, consentID); err != nil {
			return wrapErr("archive consent version", err)
		}
		var status string
		err := tx.QueryRow(ctx, `
			INSERT INTO consent_versions (consent_id, version, status, body, published_at)
			SELECT $1, COALESCE(MAX(version), 0) + 1, 'ACTIVE', $2, $3 FROM consent_versions WHERE consent_id = $1
			RETURNING id, consent_id, version, status, body, published_at, created_at`, consentID, body, at).
			Scan(&out.ID, &out.ConsentID, &out.Version, &status, &out.Body, &out.PublishedAt, &out.CreatedAt)
		if err != nil {
			return wrapErr("publish consent version", err)
		}
		out.Status = repository.ConsentVersionStatus(status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *consentRepo) ListActive(ctx context.Context, kind repository.EntityKind) ([]repository.VersionedConsent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+versionedCols+`
		FROM consents c JOIN consent_versions v ON v.consent_id = c.id AND v.status = 'ACTIVE'
		WHERE c.entity_type = $1
		ORDER BY c.id`, string(kind))
	if err != nil {
		return nil, wrapErr("list active consents", err)
	}
	defer rows.Close()

	var out []repository.VersionedConsent
	for rows.Next() {
		vc, err := scanVersioned(rows)
		if err != nil {
			return nil, wrapErr("scan consent", err)
		}
		out = append(out, *vc)
	}
	return out, wrapErr("list active consents", rows.Err())
}

func (r *consentRepo) GetVersion(ctx context.Context, versionID int64) (*repository.VersionedConsent, error) {
	vc, err := scanVersioned(r.q.QueryRow(ctx, `
		SELECT `+versionedCols+`
		FROM consent_versions v JOIN consents c ON c.id = v.consent_id
		WHERE v.id = $1`, versionID))
	if err != nil {
		return nil, wrapErr("get consent version", err)
	}
	return vc, nil
}

func (r *consentRepo) AcceptedVersionIDs(ctx context.Context, entity repository.EntityRef) (map[int64]time.Time, error) {
	rows, err := r.q.Query(ctx, `
		SELECT consent_version_id, accepted_at FROM entity_consents
		WHERE consentable_type = $1 AND consentable_id = $2`, string(entity.Kind), entity.ID)
	if err != nil {
		return nil, wrapErr("accepted consents", err)
	}
	defer rows.Close()

	out := make(map[int64]time.Time)
	for rows.Next() {
		var id int64
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, wrapErr("scan accepted consent", err)
		}
		out[id] = at
	}
	return out, wrapErr("accepted consents", rows.Err())
}

func (r *consentRepo) RecordAcceptance(ctx context.Context, entity repository.EntityRef, versionID int64, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO entity_consents (consentable_type, consentable_id, consent_version_id, accepted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (consentable_type, consentable_id, consent_version_id) DO NOTHING`,
		string(entity.Kind), entity.ID, versionID, at)
	if err != nil {
		return false, wrapErr("record acceptance", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *consentRepo) CountAcceptances(ctx context.Context, entity repository.EntityRef) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM entity_consents WHERE consentable_type = $1 AND consentable_id = $2`,
		string(entity.Kind), entity.ID).Scan(&n)
	return n, wrapErr("count acceptances", err)
}
