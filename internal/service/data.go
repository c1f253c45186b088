package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/repository"
	"github.com/templui/habits/internal/validation"
)

// policy is the row-level security rule for one table.
type policy struct {
	// scope restricts every statement to rows the caller owns.
	scope func(userID string) repository.Scope
	// insertable and updatable list the columns a caller may write.
	insertable map[string]bool
	updatable  map[string]bool
}

var policies = map[string]policy{
	backend.TableHabits: {
		scope: func(userID string) repository.Scope {
			return repository.Scope{Clause: "user_id = ?", Args: []any{userID}}
		},
		insertable: map[string]bool{"name": true, "frequency": true, "user_id": true},
		updatable:  map[string]bool{"name": true, "frequency": true},
	},
	backend.TableHabitLogs: {
		scope: func(userID string) repository.Scope {
			return repository.Scope{
				Clause: "habit_id IN (SELECT id FROM habits WHERE user_id = ?)",
				Args:   []any{userID},
			}
		},
		insertable: map[string]bool{"habit_id": true, "log_date": true, "is_completed": true},
		updatable:  map[string]bool{"log_date": true, "is_completed": true},
	},
}

// DataService runs table operations on behalf of a signed-in user. Every
// error it returns is a *backend.Error.
type DataService struct {
	tableRepository repository.TableRepository
}

func NewDataService(tableRepository repository.TableRepository) *DataService {
	return &DataService{tableRepository: tableRepository}
}

func (s *DataService) Select(ctx context.Context, userID string, q backend.Query) ([]repository.Row, error) {
	p, err := lookupPolicy(userID, q.Table)
	if err != nil {
		return nil, err
	}

	rows, err := s.tableRepository.Select(ctx, q, p.scope(userID))
	if err != nil {
		return nil, toBackendError(err)
	}
	return rows, nil
}

// Insert stores rows and returns them as persisted. id and created_at are
// always assigned here.
func (s *DataService) Insert(ctx context.Context, userID, table string, rows []repository.Row) ([]repository.Row, error) {
	p, err := lookupPolicy(userID, table)
	if err != nil {
		return nil, err
	}

	// Every row is checked before anything is written.
	prepared := make([]repository.Row, 0, len(rows))
	for _, values := range rows {
		row := repository.Row{}
		for col, v := range values {
			if !p.insertable[col] {
				return nil, notWritable(table, col)
			}
			row[col] = v
		}

		err := s.checkInsert(ctx, userID, table, row)
		if err != nil {
			return nil, err
		}

		row["id"] = uuid.New().String()
		row["created_at"] = time.Now().UTC()
		prepared = append(prepared, row)
	}

	out, err := s.tableRepository.InsertAll(ctx, table, prepared)
	if err != nil {
		return nil, toBackendError(err)
	}

	slog.Debug("rows inserted", "table", table, "count", len(out), "user_id", userID)
	return out, nil
}

func (s *DataService) Update(ctx context.Context, userID string, q backend.Query, values repository.Row) (int64, error) {
	p, err := lookupPolicy(userID, q.Table)
	if err != nil {
		return 0, err
	}
	if len(q.Filters) == 0 {
		return 0, backend.NewError(http.StatusBadRequest, backend.CodeMissingFilter, "UPDATE requires a WHERE clause")
	}

	for col := range values {
		if !p.updatable[col] {
			return 0, notWritable(q.Table, col)
		}
	}
	if q.Table == backend.TableHabits {
		err := normalizeHabit(values, false)
		if err != nil {
			return 0, err
		}
	}

	n, err := s.tableRepository.Update(ctx, q, p.scope(userID), values)
	if err != nil {
		return 0, toBackendError(err)
	}
	return n, nil
}

func (s *DataService) Delete(ctx context.Context, userID string, q backend.Query) (int64, error) {
	p, err := lookupPolicy(userID, q.Table)
	if err != nil {
		return 0, err
	}
	if len(q.Filters) == 0 {
		return 0, backend.NewError(http.StatusBadRequest, backend.CodeMissingFilter, "DELETE requires a WHERE clause")
	}

	n, err := s.tableRepository.Delete(ctx, q, p.scope(userID))
	if err != nil {
		return 0, toBackendError(err)
	}
	return n, nil
}

// checkInsert fills defaults and enforces ownership of a new row.
func (s *DataService) checkInsert(ctx context.Context, userID, table string, row repository.Row) error {
	switch table {
	case backend.TableHabits:
		owner, ok := row["user_id"]
		if !ok || owner == nil {
			row["user_id"] = userID
		} else if owner != userID {
			return rowSecurityViolation(table)
		}
		return normalizeHabit(row, true)

	case backend.TableHabitLogs:
		habitID, _ := row["habit_id"].(string)
		if habitID == "" {
			return backend.NewError(http.StatusBadRequest, backend.CodeValidation, "habit_id is required")
		}
		if row["log_date"] == nil {
			return backend.NewError(http.StatusBadRequest, backend.CodeValidation, "log_date is required")
		}
		if _, ok := row["is_completed"]; !ok {
			row["is_completed"] = false
		}

		owned, err := s.tableRepository.Select(ctx,
			backend.From(backend.TableHabits).Select("id").Eq("id", habitID).WithLimit(1),
			policies[backend.TableHabits].scope(userID))
		if err != nil {
			return toBackendError(err)
		}
		if len(owned) == 0 {
			return rowSecurityViolation(table)
		}
	}
	return nil
}

// normalizeHabit validates name and frequency in place. On insert a missing
// frequency defaults to daily.
func normalizeHabit(row repository.Row, insert bool) error {
	if v, ok := row["name"]; ok || insert {
		name, _ := v.(string)
		name = validation.NormalizeHabitName(name)
		err := validation.ValidateHabitName(name)
		if err != nil {
			return backend.NewError(http.StatusBadRequest, backend.CodeValidation, err.Error())
		}
		row["name"] = name
	}

	if v, ok := row["frequency"]; ok || insert {
		frequency, _ := v.(string)
		frequency = validation.NormalizeFrequency(frequency)
		err := validation.ValidateFrequency(frequency)
		if err != nil {
			return backend.NewError(http.StatusBadRequest, backend.CodeValidation, err.Error())
		}
		row["frequency"] = frequency
	}
	return nil
}

func lookupPolicy(userID, table string) (policy, error) {
	if userID == "" {
		return policy{}, backend.NewError(http.StatusUnauthorized, backend.CodeUnauthorized, "JWT required")
	}
	p, ok := policies[table]
	if !ok {
		return policy{}, backend.NewError(http.StatusNotFound, backend.CodeUnknownTable,
			fmt.Sprintf("relation %q does not exist", table))
	}
	return p, nil
}

func notWritable(table, column string) *backend.Error {
	return backend.NewError(http.StatusBadRequest, backend.CodeValidation,
		fmt.Sprintf("column %q of table %q cannot be written", column, table))
}

func rowSecurityViolation(table string) *backend.Error {
	return backend.NewError(http.StatusForbidden, backend.CodeRowSecurity,
		fmt.Sprintf("new row violates row-level security policy for table %q", table))
}

// toBackendError maps repository failures to wire errors.
func toBackendError(err error) error {
	var be *backend.Error
	if errors.As(err, &be) {
		return be
	}

	switch {
	case errors.Is(err, repository.ErrUnknownTable):
		return backend.NewError(http.StatusNotFound, backend.CodeUnknownTable, err.Error())
	case errors.Is(err, repository.ErrUnknownColumn):
		return backend.NewError(http.StatusBadRequest, backend.CodeUnknownColumn, err.Error())
	case errors.Is(err, repository.ErrInvalidValue):
		return backend.NewError(http.StatusBadRequest, backend.CodeInvalidText, err.Error())
	case errors.Is(err, backend.ErrBadQuery):
		return backend.NewError(http.StatusBadRequest, backend.CodeBadQuery, err.Error())
	case errors.Is(err, repository.ErrDuplicateRow):
		return backend.NewError(http.StatusConflict, backend.CodeUniqueViolation, "duplicate key value violates unique constraint")
	case errors.Is(err, repository.ErrMissingParent):
		return backend.NewError(http.StatusConflict, backend.CodeForeignKey, "insert or update violates foreign key constraint")
	}

	slog.Error("data operation failed", "error", err)
	return backend.NewError(http.StatusInternalServerError, "", "internal error")
}
