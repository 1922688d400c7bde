package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlrag/backend/internal/domain/models"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// AllowlistProfileRepository persists allowlist profiles, the sole durable
// artifact the pipeline depends on.
type AllowlistProfileRepository struct {
	db *sql.DB
}

func NewAllowlistProfileRepository(db *sql.DB) *AllowlistProfileRepository {
	return &AllowlistProfileRepository{db: db}
}

// GetByID fetches one profile.
func (r *AllowlistProfileRepository) GetByID(ctx context.Context, id int64) (*models.AllowlistProfile, error) {
	query := fmt.Sprintf(`SELECT id, name, description, rules_json, created_at, updated_at
		FROM %s WHERE id = ?`, TableAllowlistProfiles)

	profile := &models.AllowlistProfile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID, &profile.Name, &profile.Description,
		&profile.RulesJSON, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, pkgErrors.NewNotFoundError("allowlist profile", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, pkgErrors.NewDatabaseError("get allowlist profile", err)
	}
	return profile, nil
}

// GetByName fetches one profile by its unique name.
func (r *AllowlistProfileRepository) GetByName(ctx context.Context, name string) (*models.AllowlistProfile, error) {
	query := fmt.Sprintf(`SELECT id, name, description, rules_json, created_at, updated_at
		FROM %s WHERE name = ?`, TableAllowlistProfiles)

	profile := &models.AllowlistProfile{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&profile.ID, &profile.Name, &profile.Description,
		&profile.RulesJSON, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, pkgErrors.NewNotFoundError("allowlist profile", name)
	}
	if err != nil {
		return nil, pkgErrors.NewDatabaseError("get allowlist profile by name", err)
	}
	return profile, nil
}

// List returns all profiles ordered by name.
func (r *AllowlistProfileRepository) List(ctx context.Context) ([]models.AllowlistProfile, error) {
	query := fmt.Sprintf(`SELECT id, name, description, rules_json, created_at, updated_at
		FROM %s ORDER BY name`, TableAllowlistProfiles)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, pkgErrors.NewDatabaseError("list allowlist profiles", err)
	}
	defer rows.Close()

	var profiles []models.AllowlistProfile
	for rows.Next() {
		var p models.AllowlistProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.RulesJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, pkgErrors.NewDatabaseError("scan allowlist profile", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgErrors.NewDatabaseError("iterate allowlist profiles", err)
	}
	return profiles, nil
}

// Create inserts a profile after checking the rules document parses.
func (r *AllowlistProfileRepository) Create(ctx context.Context, profile *models.AllowlistProfile) error {
	if _, err := models.ParseAllowlistRules([]byte(profile.RulesJSON)); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (name, description, rules_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, TableAllowlistProfiles)

	result, err := r.db.ExecContext(ctx, query,
		profile.Name, profile.Description, profile.RulesJSON, now, now)
	if err != nil {
		return pkgErrors.NewDatabaseError("create allowlist profile", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return pkgErrors.NewDatabaseError("read allowlist profile id", err)
	}
	profile.ID = id
	profile.CreatedAt = now
	profile.UpdatedAt = now
	return nil
}

// UpdateRules replaces a profile's rules document.
func (r *AllowlistProfileRepository) UpdateRules(ctx context.Context, id int64, rulesJSON string) error {
	if _, err := models.ParseAllowlistRules([]byte(rulesJSON)); err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET rules_json = ?, updated_at = ? WHERE id = ?`, TableAllowlistProfiles)
	result, err := r.db.ExecContext(ctx, query, rulesJSON, time.Now().UTC(), id)
	if err != nil {
		return pkgErrors.NewDatabaseError("update allowlist rules", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return pkgErrors.NewDatabaseError("check allowlist update", err)
	}
	if affected == 0 {
		return pkgErrors.NewNotFoundError("allowlist profile", fmt.Sprintf("%d", id))
	}
	return nil
}

// Delete removes a profile.
func (r *AllowlistProfileRepository) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, TableAllowlistProfiles)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return pkgErrors.NewDatabaseError("delete allowlist profile", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return pkgErrors.NewDatabaseError("check allowlist delete", err)
	}
	if affected == 0 {
		return pkgErrors.NewNotFoundError("allowlist profile", fmt.Sprintf("%d", id))
	}
	return nil
}

// EnsureDefault returns the default profile, creating it with the
// deny-by-default rules when missing.
func (r *AllowlistProfileRepository) EnsureDefault(ctx context.Context) (*models.AllowlistProfile, error) {
	profile, err := r.GetByName(ctx, DefaultProfileName)
	if err == nil {
		return profile, nil
	}
	if !pkgErrors.IsNotFound(err) {
		return nil, err
	}

	rules := models.DefaultAllowlistRules()
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return nil, pkgErrors.NewInternalError("marshal default rules", err)
	}

	profile = &models.AllowlistProfile{
		Name:        DefaultProfileName,
		Description: "Deny-by-default baseline profile",
		RulesJSON:   string(rulesJSON),
	}
	if err := r.Create(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
