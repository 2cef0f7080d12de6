// internal/database/store.go
package database

import (
	"context"
	"time"
)

// Store defines the interface for database operations
type Store interface {
	// Service registry operations
	GetServices(ctx context.Context) ([]Service, error)
	GetService(ctx context.Context, name string) (*Service, error)
	SaveService(ctx context.Context, svc *Service) error
	DeleteService(ctx context.Context, name string) error

	// Result operations
	SaveResult(ctx context.Context, result *Result) error
	GetLatestResult(ctx context.Context, service string) (*Result, error)
	GetResults(ctx context.Context, filters ResultFilters) ([]Result, error)
	GetResultHistory(ctx context.Context, service string, since time.Time) ([]Result, error)
	PurgeHistory(ctx context.Context, before time.Time) (int, error)

	// Close the database connection
	Close() error
}
