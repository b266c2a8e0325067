package graphstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
)

// MapError maps infrastructure failures into graph error codes so callers
// can branch on semantics instead of driver details.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *graph.Error
	if errors.As(err, &gerr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return graph.Wrap(graph.CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return graph.Wrap(graph.CodeRetryable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return graph.Wrap(graph.CodeConflict, op, err) // unique_violation
		case "40001", "40P01", "55P03":
			return graph.Wrap(graph.CodeRetryable, op, err) // serialization/deadlock/lock_not_available
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"):
		return graph.Wrap(graph.CodeConflict, op, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporar"):
		return graph.Wrap(graph.CodeRetryable, op, err)
	default:
		return graph.Wrap(graph.CodeInternal, op, err)
	}
}
