package db

import (
	"fmt"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
)

var (
	errPathwayNotFound = fmt.Errorf("pathway: %w", apperrors.ErrNotFound)
)

// notFound wraps apperrors.ErrNotFound with the entity name.
func notFound(entity string) error {
	return fmt.Errorf("%s: %w", entity, apperrors.ErrNotFound)
}
