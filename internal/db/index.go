package db

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// batchChunk bounds the size of IN lists and insert batches.
const batchChunk = 500

// prefixUpperBound is appended to a prefix to close its lexicographic range.
const prefixUpperBound = "￿"

var safeField = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Options configures an Index.
type Options struct {
	// Timeout bounds every individual store call.
	Timeout time.Duration
	// ReadRetries is how many times a failed read is retried.
	ReadRetries int
	// Clock is the store time source. Defaults to time.Now.
	Clock func() time.Time
}

// Index is the spatial index adapter over the document store. Every call
// carries a bounded timeout and failures surface as ErrStoreUnavailable.
type Index struct {
	db   *gorm.DB
	opts Options
}

func NewIndex(db *gorm.DB, opts Options) *Index {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.ReadRetries < 0 {
		opts.ReadRetries = 0
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Index{db: db, opts: opts}
}

// Now is the store's timestamp primitive: UTC at microsecond precision.
func (ix *Index) Now() time.Time {
	return ix.opts.Clock().UTC().Truncate(time.Microsecond)
}

// Range bounds Field from From (inclusive) to To. A nil bound is open.
type Range struct {
	Field       string
	From        any
	To          any
	ToInclusive bool
}

// PrefixRange matches every value of field that starts with prefix.
func PrefixRange(field, prefix string) Range {
	return Range{Field: field, From: prefix, To: prefix + prefixUpperBound}
}

type Order struct {
	Field string
	Desc  bool
}

// Query describes an equality and range lookup with ordering and a limit.
// Callers must not rely on result order unless they set OrderBy.
type Query struct {
	Equals  map[string]any
	Ranges  []Range
	OrderBy []Order
	Limit   int
}

func (q Query) apply(tx *gorm.DB) (*gorm.DB, error) {
	keys := make([]string, 0, len(q.Equals))
	for k := range q.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !safeField.MatchString(k) {
			return nil, invalid("field %q", k)
		}
		tx = tx.Where(k+" = ?", q.Equals[k])
	}
	for _, r := range q.Ranges {
		if !safeField.MatchString(r.Field) {
			return nil, invalid("field %q", r.Field)
		}
		if r.From != nil {
			tx = tx.Where(r.Field+" >= ?", r.From)
		}
		if r.To != nil {
			op := " < ?"
			if r.ToInclusive {
				op = " <= ?"
			}
			tx = tx.Where(r.Field+op, r.To)
		}
	}
	for _, o := range q.OrderBy {
		if !safeField.MatchString(o.Field) {
			return nil, invalid("field %q", o.Field)
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx, nil
}

// Find runs q against the collection of T.
func Find[T any](ctx context.Context, ix *Index, q Query) ([]T, error) {
	var out []T
	err := ix.read(ctx, func(tx *gorm.DB) error {
		out = nil
		scoped, err := q.apply(tx)
		if err != nil {
			return err
		}
		return scoped.Find(&out).Error
	})
	return out, err
}

// RangeByPrefix returns records of T whose field lies in
// [prefix, prefix+"￿"). Extra conditions, ordering and limit come from q.
func RangeByPrefix[T any](ctx context.Context, ix *Index, field, prefix string, q Query) ([]T, error) {
	q.Ranges = append([]Range{PrefixRange(field, prefix)}, q.Ranges...)
	return Find[T](ctx, ix, q)
}

// ExactQuery returns records of T whose fields equal matches.
func ExactQuery[T any](ctx context.Context, ix *Index, matches map[string]any) ([]T, error) {
	return Find[T](ctx, ix, Query{Equals: matches})
}

// Get loads one record of T by id.
func Get[T any](ctx context.Context, ix *Index, id string) (*T, error) {
	var v T
	err := ix.read(ctx, func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).Take(&v).Error
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Insert creates value; its BeforeCreate hook assigns the id.
func (ix *Index) Insert(ctx context.Context, value any) error {
	return ix.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(value).Error
	})
}

// UpdateFields sets fields on the record of model identified by id.
func (ix *Index) UpdateFields(ctx context.Context, model any, id string, fields map[string]any) error {
	for k := range fields {
		if !safeField.MatchString(k) {
			return invalid("field %q", k)
		}
	}
	return ix.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(model).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Upsert inserts value or, when a row with the same conflict columns
// exists, overwrites only the update columns of that row. The stored row
// keeps its original id, so value's id is not authoritative afterwards.
func (ix *Index) Upsert(ctx context.Context, value any, conflict, update []string) error {
	cols := make([]clause.Column, 0, len(conflict))
	for _, c := range conflict {
		if !safeField.MatchString(c) {
			return invalid("field %q", c)
		}
		cols = append(cols, clause.Column{Name: c})
	}
	for _, u := range update {
		if !safeField.MatchString(u) {
			return invalid("field %q", u)
		}
	}
	return ix.write(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   cols,
			DoUpdates: clause.AssignmentColumns(update),
		}).Create(value).Error
	})
}

// DeleteWhere removes every record of model matching equals and returns
// how many were removed.
func (ix *Index) DeleteWhere(ctx context.Context, model any, equals map[string]any) (int64, error) {
	if len(equals) == 0 {
		return 0, invalid("delete requires at least one condition")
	}
	var n int64
	err := ix.write(ctx, func(tx *gorm.DB) error {
		scoped, err := Query{Equals: equals}.apply(tx)
		if err != nil {
			return err
		}
		res := scoped.Delete(model)
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// Batch collects deletes and inserts that Commit applies as one unit.
// Deletes run before inserts regardless of the order they were added.
type Batch struct {
	deletes []func(tx *gorm.DB) (int64, error)
	inserts []func(tx *gorm.DB) (int64, error)
	err     error
}

func NewBatch() *Batch {
	return &Batch{}
}

// Delete removes records of model by id.
func (b *Batch) Delete(model any, ids ...string) *Batch {
	return b.DeleteWhere(model, "id", ids)
}

// DeleteWhere removes records of model whose field is one of values.
func (b *Batch) DeleteWhere(model any, field string, values []string) *Batch {
	if !safeField.MatchString(field) {
		b.err = invalid("field %q", field)
		return b
	}
	b.deletes = append(b.deletes, func(tx *gorm.DB) (int64, error) {
		var total int64
		for start := 0; start < len(values); start += batchChunk {
			end := min(start+batchChunk, len(values))
			res := tx.Where(field+" IN ?", values[start:end]).Delete(model)
			if res.Error != nil {
				return total, res.Error
			}
			total += res.RowsAffected
		}
		return total, nil
	})
	return b
}

// DeleteAll empties the collection of model.
func (b *Batch) DeleteAll(model any) *Batch {
	b.deletes = append(b.deletes, func(tx *gorm.DB) (int64, error) {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model)
		return res.RowsAffected, res.Error
	})
	return b
}

// Insert adds values, a pointer to a slice or to a single record.
func (b *Batch) Insert(values any) *Batch {
	n := recordCount(values)
	if n == 0 {
		return b
	}
	b.inserts = append(b.inserts, func(tx *gorm.DB) (int64, error) {
		if err := tx.CreateInBatches(values, batchChunk).Error; err != nil {
			return 0, err
		}
		return int64(n), nil
	})
	return b
}

// BatchResult counts what a committed batch changed. DeletedByOp holds the
// count of each delete operation in the order it was added.
type BatchResult struct {
	Deleted     int64
	Inserted    int64
	DeletedByOp []int64
}

// Commit applies the batch in a single transaction: either every operation
// lands or none does. Writes are not retried.
func (ix *Index) Commit(ctx context.Context, b *Batch) (BatchResult, error) {
	var res BatchResult
	if b.err != nil {
		return res, b.err
	}
	err := ix.write(ctx, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			res = BatchResult{}
			for _, op := range b.deletes {
				n, err := op(tx)
				if err != nil {
					return err
				}
				res.Deleted += n
				res.DeletedByOp = append(res.DeletedByOp, n)
			}
			for _, op := range b.inserts {
				n, err := op(tx)
				if err != nil {
					return err
				}
				res.Inserted += n
			}
			return nil
		})
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// BatchReplace deletes records of model by id and inserts the new set atomically.
func (ix *Index) BatchReplace(ctx context.Context, model any, deleteIDs []string, inserts any) (BatchResult, error) {
	return ix.Commit(ctx, NewBatch().Delete(model, deleteIDs...).Insert(inserts))
}

// ReplaceAll swaps the whole collection of model for inserts atomically.
func (ix *Index) ReplaceAll(ctx context.Context, model any, inserts any) (BatchResult, error) {
	return ix.Commit(ctx, NewBatch().DeleteAll(model).Insert(inserts))
}

func (ix *Index) call(ctx context.Context, fn func(tx *gorm.DB) error) error {
	cctx, cancel := context.WithTimeout(ctx, ix.opts.Timeout)
	defer cancel()
	return classify(fn(ix.db.WithContext(cctx)))
}

// read retries ErrStoreUnavailable with a linear backoff.
func (ix *Index) read(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt <= ix.opts.ReadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return classify(ctx.Err())
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
		err = ix.call(ctx, fn)
		if !errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		log.Warn("store read failed", "attempt", attempt+1, "err", err)
	}
	return err
}

func (ix *Index) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return ix.call(ctx, fn)
}

func recordCount(values any) int {
	if values == nil {
		return 0
	}
	v := reflect.ValueOf(values)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		return v.Len()
	}
	return 1
}
