package store

import (
	"context"
	"fmt"

	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

var (
	_ Store            = (*GORMStore)(nil)
	_ models.UserStore = (*GORMStore)(nil)
)

// Healthcheck fails when the database is unreachable or the users table
// cannot be read.
func (s *GORMStore) Healthcheck(ctx context.Context) error {
	if err := s.pool.PingContext(ctx); err != nil {
		return fmt.Errorf("%s store unreachable: %w", s.config.Type, err)
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Limit(1).Count(&n).Error; err != nil {
		return fmt.Errorf("%s store: users table: %w", s.config.Type, err)
	}
	return nil
}

// Close releases the connection pool. The store must not be used afterwards.
func (s *GORMStore) Close() error {
	return s.pool.Close()
}
