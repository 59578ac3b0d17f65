package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sprintbook/internal/domain"
	"sprintbook/internal/repo"
)

// ResolveQuarter picks the quarter a command or request works on: an explicit
// id or name when given, the current quarter otherwise.
func ResolveQuarter(ctx context.Context, r repo.Repo, override string) (domain.Quarter, error) {
	override = strings.TrimSpace(override)
	if override == "" {
		q, err := r.CurrentQuarter(ctx)
		if errors.Is(err, repo.ErrNotFound) {
			return q, fmt.Errorf("no current quarter is set; use sb quarter set <name>: %w", repo.ErrNotFound)
		}
		return q, err
	}
	q, err := r.GetQuarter(ctx, override)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return q, err
	}
	q, err = r.GetQuarterByNameTx(ctx, nil, override)
	if errors.Is(err, repo.ErrNotFound) {
		return q, fmt.Errorf("quarter %s: %w", override, repo.ErrNotFound)
	}
	return q, err
}
