package warehouse

import (
	"context"
	"sort"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
)

// Params carries the union of report filters. Each report reads the
// fields it understands and ignores the rest.
type Params struct {
	Locality int
	YearFrom int
	YearTo   int
	Year     int
	Month    int
	Limit    int
	Chapter  string
}

type reportFunc func(ctx context.Context, s *Service, p Params) ([]database.Record, error)

var reports = map[string]reportFunc{
	"localidades": func(ctx context.Context, s *Service, _ Params) ([]database.Record, error) {
		return s.Localities(ctx)
	},
	"series-mensal": func(ctx context.Context, s *Service, p Params) ([]database.Record, error) {
		return s.MonthlySeries(ctx, SeriesFilter{
			Locality: p.Locality, YearFrom: p.YearFrom, YearTo: p.YearTo, Month: p.Month, Limit: p.Limit,
		})
	},
	"internacoes-cid-cap": func(ctx context.Context, s *Service, p Params) ([]database.Record, error) {
		return s.TopChapters(ctx, Admissions, ChapterFilter{Locality: p.Locality, Year: p.Year, Month: p.Month})
	},
	"obitos-cid-cap": func(ctx context.Context, s *Service, p Params) ([]database.Record, error) {
		return s.TopChapters(ctx, Deaths, ChapterFilter{Locality: p.Locality, Year: p.Year, Month: p.Month})
	},
	"dados-por-estado": func(ctx context.Context, s *Service, _ Params) ([]database.Record, error) {
		return s.StateTotals(ctx)
	},
	"internacoes-cid-por-estado": func(ctx context.Context, s *Service, p Params) ([]database.Record, error) {
		return s.ChapterByState(ctx, p.Chapter)
	},
}

func init() {
	for key := range Breakdowns {
		reports[key] = func(ctx context.Context, s *Service, p Params) ([]database.Record, error) {
			return s.Breakdown(ctx, key, Filter{Locality: p.Locality})
		}
	}
}

// ReportNames returns every report Run accepts, sorted.
func ReportNames() []string {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the report registered under name.
func (s *Service) Run(ctx context.Context, name string, p Params) ([]database.Record, error) {
	fn, ok := reports[name]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "unknown report: "+name)
	}
	return fn(ctx, s, p)
}
