package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/models"
)

const branchColumns = "id, organization_id, name, code, address, latitude, longitude, geohash, settings, is_active, created_at, updated_at"

const branchCodeTaken = "A branch with this code already exists in this organization"

type BranchStore struct {
	base
}

func NewBranchStore(db database.Beginner) *BranchStore {
	return &BranchStore{base{db: db}}
}

func scanBranch(row pgx.Row) (models.Branch, error) {
	var b models.Branch
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Code, &b.Address, &b.Latitude, &b.Longitude,
		&b.Geohash, &b.Settings, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *BranchStore) List(ctx context.Context, orgID uuid.UUID) ([]models.Branch, error) {
	var out []models.Branch
	err := s.run(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"SELECT "+branchColumns+" FROM branches WHERE organization_id = $1 ORDER BY name", orgID)
		if err != nil {
			return fmt.Errorf("list branches: %w", err)
		}
		out, err = collect(rows, scanBranch)
		if err != nil {
			return fmt.Errorf("scan branch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Organization not found")
	}
	return out, nil
}

func (s *BranchStore) Get(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	var b models.Branch
	err := s.run(ctx, func(tx pgx.Tx) error {
		var err error
		b, err = scanBranch(tx.QueryRow(ctx, "SELECT "+branchColumns+" FROM branches WHERE id = $1", id))
		if err != nil {
			return fmt.Errorf("get branch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Branch not found")
	}
	return &b, nil
}

func (s *BranchStore) Create(ctx context.Context, b *models.Branch) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		created, err := scanBranch(tx.QueryRow(ctx,
			`INSERT INTO branches (organization_id, name, code, address, latitude, longitude, geohash)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+branchColumns,
			b.OrganizationID, b.Name, b.Code, b.Address, b.Latitude, b.Longitude, b.Geohash))
		if err != nil {
			return fmt.Errorf("insert branch: %w", err)
		}
		*b = created
		return nil
	})
	if database.IsUniqueViolation(err, "") {
		return apperr.Wrap(apperr.Conflict, branchCodeTaken, err)
	}
	return database.Classify(err, "Organization not found")
}

func (s *BranchStore) Update(ctx context.Context, b *models.Branch) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		updated, err := scanBranch(tx.QueryRow(ctx,
			`UPDATE branches
			 SET name = $2, code = $3, address = $4, latitude = $5, longitude = $6, geohash = $7,
			     is_active = $8, updated_at = now()
			 WHERE id = $1
			 RETURNING `+branchColumns,
			b.ID, b.Name, b.Code, b.Address, b.Latitude, b.Longitude, b.Geohash, b.IsActive))
		if err != nil {
			return fmt.Errorf("update branch: %w", err)
		}
		*b = updated
		return nil
	})
	if database.IsUniqueViolation(err, "") {
		return apperr.Wrap(apperr.Conflict, branchCodeTaken, err)
	}
	return database.Classify(err, "Branch not found")
}

func (s *BranchStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM branches WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("delete branch: %w", err)
		}
		return database.CheckAffected(ctx, tx, tag, "SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)", id)
	})
	return database.Classify(err, "Branch not found")
}
