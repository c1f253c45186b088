package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/model"
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
	ErrInvalidValue  = errors.New("invalid value")
	ErrRowNotFound   = errors.New("row not found")
	ErrDuplicateRow  = errors.New("duplicate row")
	ErrMissingParent = errors.New("referenced row does not exist")
)

// ColumnKind decides how filter operands are parsed and how driver values
// are normalised. Drivers disagree on booleans and timestamps (sqlite hands
// back int64 and text where postgres hands back bool and time.Time).
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindBool
	KindTime
	KindDate
)

// Schema lists the tables reachable through the data API.
var Schema = map[string]map[string]ColumnKind{
	backend.TableHabits: {
		"id":         KindText,
		"user_id":    KindText,
		"name":       KindText,
		"frequency":  KindText,
		"created_at": KindTime,
	},
	backend.TableHabitLogs: {
		"id":           KindText,
		"habit_id":     KindText,
		"log_date":     KindDate,
		"is_completed": KindBool,
		"created_at":   KindTime,
	},
}

// Row is one table row keyed by column name.
type Row = map[string]any

// Scope is an extra SQL condition ANDed into every statement, written with
// ? placeholders.
type Scope struct {
	Clause string
	Args   []any
}

type TableRepository interface {
	Select(ctx context.Context, q backend.Query, scope Scope) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	InsertAll(ctx context.Context, table string, rows []Row) ([]Row, error)
	Update(ctx context.Context, q backend.Query, scope Scope, values Row) (int64, error)
	Delete(ctx context.Context, q backend.Query, scope Scope) (int64, error)
}

type tableRepository struct {
	db *sqlx.DB
}

func NewTableRepository(db *sqlx.DB) TableRepository {
	return &tableRepository{db: db}
}

func (r *tableRepository) Select(ctx context.Context, q backend.Query, scope Scope) ([]Row, error) {
	columns, err := tableColumns(q.Table)
	if err != nil {
		return nil, err
	}

	selected := "*"
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if _, ok := columns[c]; !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, c)
			}
		}
		selected = strings.Join(q.Columns, ", ")
	}

	where, args, err := buildWhere(columns, q, scope)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s%s", selected, q.Table, where)

	if len(q.Orders) > 0 {
		parts := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			if _, ok := columns[o.Column]; !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, o.Column)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = o.Column + " " + dir
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}

	query, args, err := r.prepare(sb.String(), args)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows, columns)
}

func (r *tableRepository) Insert(ctx context.Context, table string, row Row) (Row, error) {
	out, err := r.InsertAll(ctx, table, []Row{row})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// InsertAll stores rows in one transaction: either every row is written or
// none is.
func (r *tableRepository) InsertAll(ctx context.Context, table string, rows []Row) ([]Row, error) {
	columns, err := tableColumns(table)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		stored, err := r.insertRow(ctx, tx, table, columns, row)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}

	err = tx.Commit()
	if err != nil {
		return nil, mapConstraint(err)
	}
	return out, nil
}

func (r *tableRepository) insertRow(ctx context.Context, tx *sqlx.Tx, table string, columns map[string]ColumnKind, row Row) (Row, error) {
	names := sortedKeys(row)
	args := make([]any, len(names))
	for i, name := range names {
		kind, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, name)
		}
		v, err := coerce(kind, row[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		args[i] = v
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(names, ", "), placeholders(len(names)))

	rows, err := tx.QueryxContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return nil, mapConstraint(err)
	}
	defer rows.Close()

	out, err := scanRows(rows, columns)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if len(out) == 0 {
		return nil, ErrRowNotFound
	}
	return out[0], nil
}

func (r *tableRepository) Update(ctx context.Context, q backend.Query, scope Scope, values Row) (int64, error) {
	columns, err := tableColumns(q.Table)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: nothing to update", ErrInvalidValue)
	}

	names := sortedKeys(values)
	sets := make([]string, len(names))
	args := make([]any, 0, len(names))
	for i, name := range names {
		kind, ok := columns[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, name)
		}
		v, err := coerce(kind, values[name])
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		sets[i] = name + " = ?"
		args = append(args, v)
	}

	where, whereArgs, err := buildWhere(columns, q, scope)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query, args, err := r.prepare(fmt.Sprintf("UPDATE %s SET %s%s", q.Table, strings.Join(sets, ", "), where), args)
	if err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapConstraint(err)
	}
	return result.RowsAffected()
}

func (r *tableRepository) Delete(ctx context.Context, q backend.Query, scope Scope) (int64, error) {
	columns, err := tableColumns(q.Table)
	if err != nil {
		return 0, err
	}

	where, args, err := buildWhere(columns, q, scope)
	if err != nil {
		return 0, err
	}

	query, args, err := r.prepare(fmt.Sprintf("DELETE FROM %s%s", q.Table, where), args)
	if err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// prepare expands slice arguments for IN clauses and rebinds ? placeholders
// for the driver.
func (r *tableRepository) prepare(query string, args []any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return r.db.Rebind(query), args, nil
}

func tableColumns(table string) (map[string]ColumnKind, error) {
	columns, ok := Schema[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return columns, nil
}

func buildWhere(columns map[string]ColumnKind, q backend.Query, scope Scope) (string, []any, error) {
	var conds []string
	var args []any

	for _, f := range q.Filters {
		kind, ok := columns[f.Column]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, f.Column)
		}

		switch f.Op {
		case backend.OpEq:
			if len(f.Values) != 1 {
				return "", nil, fmt.Errorf("%w: eq on %s needs one operand", ErrInvalidValue, f.Column)
			}
			v, err := coerce(kind, f.Values[0])
			if err != nil {
				return "", nil, fmt.Errorf("%s: %w", f.Column, err)
			}
			conds = append(conds, f.Column+" = ?")
			args = append(args, v)
		case backend.OpIn:
			if len(f.Values) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			list := make([]any, len(f.Values))
			for i, s := range f.Values {
				v, err := coerce(kind, s)
				if err != nil {
					return "", nil, fmt.Errorf("%s: %w", f.Column, err)
				}
				list[i] = v
			}
			conds = append(conds, f.Column+" IN (?)")
			args = append(args, list)
		default:
			return "", nil, fmt.Errorf("%w: operator %q", backend.ErrBadQuery, f.Op)
		}
	}

	if scope.Clause != "" {
		conds = append(conds, "("+scope.Clause+")")
		args = append(args, scope.Args...)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func scanRows(rows *sqlx.Rows, columns map[string]ColumnKind) ([]Row, error) {
	out := []Row{}
	for rows.Next() {
		row := Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for name, v := range row {
			row[name] = normalize(columns[name], v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// coerce converts a wire value into the driver argument for a column.
func coerce(kind ColumnKind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case KindBool:
		switch val := v.(type) {
		case bool:
			return val, nil
		case string:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, val)
			}
			return b, nil
		}
	case KindDate:
		switch val := v.(type) {
		case model.Date:
			return val.String(), nil
		case string:
			d, err := model.ParseDate(val)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			return d.String(), nil
		}
	case KindTime:
		switch val := v.(type) {
		case time.Time:
			return val.UTC(), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, val)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a timestamp", ErrInvalidValue, val)
			}
			return t.UTC(), nil
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: unexpected %T", ErrInvalidValue, v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

// normalize converts a scanned driver value into its wire type.
func normalize(kind ColumnKind, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}

	switch kind {
	case KindBool:
		switch val := v.(type) {
		case bool:
			return val
		case int64:
			return val != 0
		case string:
			b, err := strconv.ParseBool(val)
			if err == nil {
				return b
			}
		}
	case KindDate:
		switch val := v.(type) {
		case time.Time:
			return val.Format(model.DateLayout)
		case string:
			if len(val) >= len(model.DateLayout) {
				return val[:len(model.DateLayout)]
			}
		}
	case KindTime:
		switch val := v.(type) {
		case time.Time:
			return val.UTC()
		case string:
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, val); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return v
}

func mapConstraint(err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicateRow, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrMissingParent, err)
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedKeys(m Row) []string {
	return slices.Sorted(maps.Keys(m))
}
