package stats

import (
	"context"

	"github.com/verte-zerg/neotype/internal/model"
)

// Source is the persisted history a report is built from.
type Source interface {
	ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionRecord, error)
	Aggregate(ctx context.Context) (model.Aggregate, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Sessions  []model.SessionRecord
	Aggregate model.Aggregate
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, src Source, cfg model.StatsConfig) (Report, error) {
	sessions, err := src.ListSessions(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	if cfg.Last > 0 && len(sessions) > cfg.Last {
		sessions = sessions[len(sessions)-cfg.Last:]
	}
	agg, err := src.Aggregate(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{Sessions: sessions, Aggregate: agg}, nil
}
