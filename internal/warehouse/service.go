package warehouse

import (
	"context"
	"time"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/logger"
	"github.com/koustreak/saudedash/internal/metrics"
	"github.com/koustreak/saudedash/internal/schema"
)

// Options tunes report execution.
type Options struct {
	// HeavyStatementTimeout is applied with SET LOCAL to the ICD-10 chapter
	// rankings. Zero keeps the session timeout.
	HeavyStatementTimeout time.Duration
}

// Service runs the warehouse reports. Every operation acquires one
// connection, runs, and releases it before returning.
type Service struct {
	db       database.Provider
	resolver *schema.Resolver
	opts     Options
	log      *logger.Logger
}

// NewService returns a Service over db. A nil resolver gets one for
// DescriptionTargets.
func NewService(db database.Provider, resolver *schema.Resolver, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.L()
	}
	if resolver == nil {
		resolver = schema.NewResolver(log, DescriptionTargets()...)
	}
	return &Service{db: db, resolver: resolver, opts: opts, log: log}
}

// Resolver returns the description column resolver.
func (s *Service) Resolver() *schema.Resolver {
	return s.resolver
}

// Localities lists every locality ordered by municipality.
func (s *Service) Localities(ctx context.Context) ([]database.Record, error) {
	return s.run(ctx, "localidades", func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		return query(ctx, c, localitiesSQL)
	})
}

// DataPeriod returns the first and last (ano, mes) that have fact rows as
// ano_inicio, ano_fim, mes_inicio, mes_fim. All four are null when the
// fact table is empty.
func (s *Service) DataPeriod(ctx context.Context) (database.Record, error) {
	recs, err := s.run(ctx, "periodo-dados", func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		return query(ctx, c, periodSQL)
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return database.Record{
			{Key: "ano_inicio"}, {Key: "ano_fim"}, {Key: "mes_inicio"}, {Key: "mes_fim"},
		}, nil
	}
	return recs[0], nil
}

// MonthlySeries returns admissions and deaths per month in ascending
// (ano, mes) order.
func (s *Service) MonthlySeries(ctx context.Context, f SeriesFilter) ([]database.Record, error) {
	return s.run(ctx, "series-mensal", func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		sql, args, err := buildSeries(f)
		if err != nil {
			return nil, err
		}
		return query(ctx, c, sql, args...)
	})
}

// Breakdown runs the dimension breakdown registered under key.
func (s *Service) Breakdown(ctx context.Context, key string, f Filter) ([]database.Record, error) {
	b, ok := Breakdowns[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "unknown report: "+key)
	}
	return s.run(ctx, key, func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		if !b.resolved() {
			sql, args, err := b.build(f, "")
			if err != nil {
				return nil, err
			}
			return query(ctx, c, sql, args...)
		}
		return s.describe(ctx, c, b.Table, func(column string) ([]database.Record, error) {
			sql, args, err := b.build(f, column)
			if err != nil {
				return nil, err
			}
			return query(ctx, c, sql, args...)
		})
	})
}

// TopChapters returns at most ten ICD-10 chapters ranked by m, highest
// first. The query runs in a read-only transaction with the heavy
// statement timeout.
func (s *Service) TopChapters(ctx context.Context, m Measure, f ChapterFilter) ([]database.Record, error) {
	return s.run(ctx, m.Name+"-cid-cap", func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		return s.describe(ctx, c, ChapterTable, func(column string) ([]database.Record, error) {
			sql, args, err := buildTopChapters(m, f, column)
			if err != nil {
				return nil, err
			}
			return s.heavy(ctx, c, sql, args...)
		})
	})
}

// StateTotals returns admissions and deaths per state ordered by uf.
func (s *Service) StateTotals(ctx context.Context) ([]database.Record, error) {
	return s.run(ctx, "dados-por-estado", func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		return query(ctx, c, stateTotalsSQL)
	})
}

// ChapterByState returns admissions per state, for one ICD-10 chapter when
// code is set and across all chapters otherwise.
func (s *Service) ChapterByState(ctx context.Context, code string) ([]database.Record, error) {
	return s.run(ctx, "internacoes-cid-por-estado", func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		if code == "" {
			return query(ctx, c, admissionsByStateSQL)
		}
		return s.describe(ctx, c, ChapterTable, func(column string) ([]database.Record, error) {
			sql, args, err := buildChapterByState(code, column)
			if err != nil {
				return nil, err
			}
			return query(ctx, c, sql, args...)
		})
	})
}

// run acquires a connection, runs fn and records the report metrics.
func (s *Service) run(ctx context.Context, report string, fn func(context.Context, database.Conn) ([]database.Record, error)) ([]database.Record, error) {
	start := time.Now()
	var recs []database.Record
	err := database.WithConn(ctx, s.db, func(c database.Conn) error {
		var err error
		recs, err = fn(ctx, c)
		return err
	})
	metrics.RecordQuery(report, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// describe runs fn with the resolved description column of table. When fn
// fails with an undefined column the cached column is dropped, resolved
// again and fn is retried once.
func (s *Service) describe(ctx context.Context, c database.Conn, table string, fn func(column string) ([]database.Record, error)) ([]database.Record, error) {
	column, err := s.resolver.Column(ctx, c, table)
	if err != nil {
		return nil, err
	}
	recs, err := fn(column)
	if err == nil || !errs.IsUndefinedColumn(err) {
		return recs, err
	}

	s.log.WarnWith("description column rejected, resolving again", err, map[string]any{
		"table":  table,
		"column": column,
	})
	s.resolver.Invalidate(table)
	metrics.RecordReResolution(table)

	column, err = s.resolver.Column(ctx, c, table)
	if err != nil {
		return nil, err
	}
	return fn(column)
}

// heavy runs a query in a read-only transaction with the heavy timeout.
func (s *Service) heavy(ctx context.Context, c database.Conn, sql string, args ...any) ([]database.Record, error) {
	var recs []database.Record
	err := database.ReadOnly(ctx, c, func(tx database.Tx) error {
		if s.opts.HeavyStatementTimeout > 0 {
			stmt := "SET LOCAL statement_timeout = " + database.TimeoutLiteral(s.opts.HeavyStatementTimeout)
			if err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		var err error
		recs, err = query(ctx, tx, sql, args...)
		return err
	})
	return recs, err
}

func query(ctx context.Context, q database.Querier, sql string, args ...any) ([]database.Record, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return database.ScanRecords(rows)
}
