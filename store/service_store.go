package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"washday/api/models"
)

// ErrServiceNotFound is returned when no service matches a slug.
var ErrServiceNotFound = errors.New("service not found")

type ServiceStore struct {
	db *sqlx.DB
}

func NewServiceStore(db *sqlx.DB) *ServiceStore {
	return &ServiceStore{db: db}
}

// ListServices returns the catalog in display order.
func (s *ServiceStore) ListServices(ctx context.Context) ([]models.Service, error) {
	services := []models.Service{}
	err := s.db.SelectContext(ctx, &services, `
		SELECT id, slug, name, description, price_cents, turnaround_hours, position, created_at
		FROM services
		ORDER BY position ASC, id ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

func (s *ServiceStore) GetServiceBySlug(ctx context.Context, slug string) (*models.Service, error) {
	service := &models.Service{}
	err := s.db.GetContext(ctx, service, `
		SELECT id, slug, name, description, price_cents, turnaround_hours, position, created_at
		FROM services
		WHERE slug = $1;
	`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service %q: %w", slug, ErrServiceNotFound)
		}
		return nil, fmt.Errorf("failed to get service by slug: %w", err)
	}
	return service, nil
}
