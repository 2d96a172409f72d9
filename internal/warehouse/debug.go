package warehouse

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/schema"
)

// IndexReport lists the fact table indexes and the critical ones missing.
type IndexReport struct {
	Total           int               `json:"total_indices"`
	Found           []string          `json:"indices_encontrados"`
	MissingCritical []string          `json:"indices_criticos_faltando"`
	All             []database.Record `json:"todos_indices"`
}

// TableColumns is the column list of one table.
type TableColumns struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

// QueryPlan is the EXPLAIN ANALYZE output of a chapter ranking.
type QueryPlan struct {
	Plan    []map[string]any `json:"plano"`
	Summary PlanSummary      `json:"resumo"`
}

type PlanSummary struct {
	TotalTime any `json:"tempo_total"`
	Rows      any `json:"linhas"`
}

// FactIndexes lists the idx_fato* indexes of the fact table.
func (s *Service) FactIndexes(ctx context.Context) (*IndexReport, error) {
	recs, err := s.run(ctx, "debug-indices", func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		return query(ctx, c, factIndexesSQL, FactTable, factIndexPrefix+"%")
	})
	if err != nil {
		return nil, err
	}

	report := &IndexReport{
		Total:           len(recs),
		Found:           make([]string, 0, len(recs)),
		MissingCritical: []string{},
		All:             recs,
	}
	present := make(map[string]bool, len(recs))
	for _, r := range recs {
		v, _ := r.Get("indexname")
		name, _ := v.(string)
		present[name] = true
		report.Found = append(report.Found, name)
	}
	for _, name := range CriticalIndexes {
		if !present[name] {
			report.MissingCritical = append(report.MissingCritical, name)
		}
	}
	return report, nil
}

// TableColumns lists the columns of a public table. The table name is
// bound as a parameter, never interpolated.
func (s *Service) TableColumns(ctx context.Context, table string) (*TableColumns, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "table name is required")
	}

	var cols []string
	err := database.WithConn(ctx, s.db, func(c database.Conn) error {
		var err error
		cols, err = schema.NewPgIntrospector(c).ColumnNames(ctx, schema.DefaultSchema, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &TableColumns{Table: table, Columns: cols}, nil
}

// QueryPlan runs EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) on the unfiltered
// chapter ranking of m.
func (s *Service) QueryPlan(ctx context.Context, m Measure) (*QueryPlan, error) {
	var raw []byte
	_, err := s.run(ctx, "debug-query-plan", func(ctx context.Context, c database.Conn) ([]database.Record, error) {
		return s.describe(ctx, c, ChapterTable, func(column string) ([]database.Record, error) {
			sql, args, err := buildTopChapters(m, ChapterFilter{}, column)
			if err != nil {
				return nil, err
			}
			return nil, c.QueryRow(ctx, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) "+sql, args...).Scan(&raw)
		})
	})
	if err != nil {
		return nil, err
	}

	plan := &QueryPlan{}
	if err := json.Unmarshal(raw, &plan.Plan); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "decode query plan", err)
	}
	if len(plan.Plan) > 0 {
		top := plan.Plan[0]
		plan.Summary.TotalTime = top["Execution Time"]
		if node, ok := top["Plan"].(map[string]any); ok {
			plan.Summary.Rows = node["Actual Rows"]
		}
	}
	return plan, nil
}
