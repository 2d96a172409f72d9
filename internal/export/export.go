// Package export writes report snapshots as CSV to object storage and hands
// back a presigned download link.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/filestore"
	"github.com/koustreak/saudedash/internal/logger"
	"github.com/koustreak/saudedash/internal/metrics"
	"github.com/koustreak/saudedash/internal/warehouse"
)

const (
	keyPrefix   = "exports/"
	contentType = "text/csv; charset=utf-8"
	defaultTTL  = 15 * time.Minute
)

// Runner runs a named report.
type Runner interface {
	Run(ctx context.Context, name string, p warehouse.Params) ([]database.Record, error)
}

// Result describes a stored export.
type Result struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	URL     string `json:"url"`
	Rows    int    `json:"rows"`
}

// Service exports reports to a bucket.
type Service struct {
	runner Runner
	store  filestore.Store
	bucket string
	ttl    time.Duration
	now    func() time.Time
	log    *logger.Logger
}

// NewService returns an export Service writing to bucket.
func NewService(runner Runner, store filestore.Store, bucket string, ttl time.Duration, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = logger.L()
	}
	return &Service{
		runner: runner,
		store:  store,
		bucket: bucket,
		ttl:    ttl,
		now:    time.Now,
		log:    log.With().Str("component", "export").Logger(),
	}
}

// Export runs report with p, uploads it as CSV and returns a download link.
func (s *Service) Export(ctx context.Context, report string, p warehouse.Params) (res *Result, err error) {
	defer func() { metrics.RecordExport(report, err) }()

	recs, err := s.runner.Run(ctx, report, p)
	if err != nil {
		return nil, err
	}

	body, err := renderCSV(recs)
	if err != nil {
		return nil, err
	}

	key := objectKey(report, s.now(), uuid.NewString())
	if _, err := s.store.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return nil, err
	}

	link, err := s.store.PresignGetURL(ctx, s.bucket, key, s.ttl)
	if err != nil {
		return nil, err
	}

	s.log.InfoWith("report exported", map[string]any{"report": report, "key": key, "rows": len(recs)})
	return &Result{Success: true, Key: key, URL: link, Rows: len(recs)}, nil
}

// List returns the stored exports of report, oldest first.
func (s *Service) List(ctx context.Context, report string) ([]filestore.ObjectInfo, error) {
	return s.store.ListObjects(ctx, s.bucket, filestore.ListOptions{
		Prefix:    keyPrefix + report + "/",
		Recursive: true,
	})
}

func objectKey(report string, at time.Time, id string) string {
	return fmt.Sprintf("%s%s/%s-%s.csv", keyPrefix, report, at.UTC().Format("20060102T150405Z"), id)
}

// renderCSV writes a header of the record columns followed by one line per
// record. An empty report renders as an empty file.
func renderCSV(recs []database.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(recs) > 0 {
		if err := w.Write(recs[0].Columns()); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to render csv", err)
		}
		line := make([]string, len(recs[0]))
		for _, r := range recs {
			line = line[:0]
			for _, f := range r {
				line = append(line, cell(f.Value))
			}
			if err := w.Write(line); err != nil {
				return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to render csv", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to render csv", err)
	}
	return buf.Bytes(), nil
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
