package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"scoutline.dev/orchestrator/internal/store"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "store suite")
}

// errRow is a pgx.Row that always reports no matching row, the shape
// GetBySlug sees for a slug that is absent or excluded by a where clause.
type errRow struct{ err error }

func (r errRow) Scan(_ ...any) error { return r.err }

// emptyRows is a pgx.Rows with no rows, enough to exercise ListActive's
// query construction without needing a real result set to scan.
type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(_ ...any) error                          { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                               { return nil }

// recordingQuerier captures the SQL text and args of the last call made
// through it, standing in for pgxpool.Pool/pgx.Tx in these tests.
type recordingQuerier struct {
	lastSQL  string
	lastArgs []any
	row      pgx.Row
	rows     pgx.Rows
	execTag  pgconn.CommandTag
	execErr  error
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.lastSQL = sql
	q.lastArgs = args
	return q.execTag, q.execErr
}

func (q *recordingQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.lastSQL = sql
	q.lastArgs = args
	return q.rows, nil
}

func (q *recordingQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.lastSQL = sql
	q.lastArgs = args
	return q.row
}

var _ = Describe("strategy store active-filtering", func() {
	It("filters GetBySlug by is_active, the same as ListActive", func() {
		q := &recordingQuerier{row: errRow{err: pgx.ErrNoRows}}
		strategies := store.NewStores(q).Strategies()

		_, err := strategies.GetBySlug(context.Background(), "news-daily")
		Expect(err).To(MatchError(store.ErrNotFound))

		Expect(strings.ToLower(q.lastSQL)).To(ContainSubstring("is_active"))
		Expect(q.lastArgs).To(ConsistOf("news-daily"))
	})

	It("filters ListActive by is_active", func() {
		q := &recordingQuerier{rows: emptyRows{}}
		strategies := store.NewStores(q).Strategies()

		out, err := strategies.ListActive(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())

		Expect(strings.ToLower(q.lastSQL)).To(ContainSubstring("is_active"))
	})

	It("deactivate reports ErrNotFound when no row matched", func() {
		q := &recordingQuerier{execTag: pgconn.NewCommandTag("UPDATE 0")}
		strategies := store.NewStores(q).Strategies()

		err := strategies.Deactivate(context.Background(), "missing-slug")
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("deactivate succeeds when a row matched", func() {
		q := &recordingQuerier{execTag: pgconn.NewCommandTag("UPDATE 1")}
		strategies := store.NewStores(q).Strategies()

		err := strategies.Deactivate(context.Background(), "news-daily")
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.ToLower(q.lastSQL)).To(ContainSubstring("is_active = false"))
	})
})
