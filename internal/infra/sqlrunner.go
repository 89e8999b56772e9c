package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"tasvir/internal/metrics"
)

// SQLExecutor is the query surface used by the Postgres repositories.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ErrMissingMarker rejects query text that does not start with a --sql line.
var ErrMissingMarker = errors.New("sql marker missing or invalid")

// SQLRunner sends marker-tagged queries to Postgres. Logs and the
// query_duration histogram carry the marker, never the query text or its
// arguments, so user phone numbers stay out of both.
type SQLRunner struct {
	db     SQLExecutor
	logger zerolog.Logger
}

// NewSQLRunner wraps db, normally a *pgxpool.Pool.
func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, body, args...)
	r.observe(marker, start, err).Int64("rows", tag.RowsAffected()).Msg("sql exec")
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return &observedRow{runner: r, row: r.db.QueryRow(ctx, body, args...), marker: marker, start: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		r.observe(marker, start, err).Msg("sql query")
		return nil, err
	}
	return &observedRows{Rows: rows, runner: r, marker: marker, start: start}, nil
}

// observe records one round trip and returns the log event for the caller
// to finish. Empty results count as success.
func (r *SQLRunner) observe(marker string, start time.Time, err error) *zerolog.Event {
	elapsed := time.Since(start)
	outcome := "ok"
	ev := r.logger.Debug()
	switch {
	case err == nil:
	case IsNoRows(err):
		outcome = "no_rows"
	default:
		outcome = "error"
		ev = r.logger.Error().Err(err)
	}
	metrics.SQLQueryDuration.WithLabelValues(marker, outcome).Observe(elapsed.Seconds())
	return ev.Str("sql", marker).Dur("duration", elapsed)
}

type observedRow struct {
	runner *SQLRunner
	row    pgx.Row
	marker string
	start  time.Time
}

func (o *observedRow) Scan(dest ...any) error {
	err := o.row.Scan(dest...)
	o.runner.observe(o.marker, o.start, err).Msg("sql query_row")
	return err
}

type observedRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
	done   bool
}

func (o *observedRows) Close() {
	o.Rows.Close()
	if o.done {
		return
	}
	o.done = true
	o.runner.observe(o.marker, o.start, o.Rows.Err()).Msg("sql query")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

// extractMarker splits the leading --sql line from the statement body.
func extractMarker(query string) (marker, body string, err error) {
	head, rest, _ := strings.Cut(strings.TrimSpace(query), "\n")
	head = strings.TrimSpace(head)
	if !markerRegexp.MatchString(head) {
		return "", "", ErrMissingMarker
	}
	return strings.TrimPrefix(head, "--sql "), strings.TrimSpace(rest), nil
}

// IsNoRows reports whether err is pgx's empty-result error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ SQLExecutor = (*SQLRunner)(nil)
