package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coparent/internal/core"
)

const expenseColumns = `id, account_id, date, description, amount_agorot, category, child_id,
	paid_by_id, split_equally, status, created_by, receipt_url, created_at,
	is_recurring, frequency, has_end_date, end_date, recurring_parent_id`

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                          core.Expense
		date, createdAt, endDate   string
		status, frequency          string
		split, recurring, hasEndDt int
	)
	err := row.Scan(&e.ID, &e.AccountID, &date, &e.Description, &e.Amount.Agorot, &e.Category, &e.ChildID,
		&e.PaidByID, &split, &status, &e.CreatedBy, &e.ReceiptURL, &createdAt,
		&recurring, &frequency, &hasEndDt, &endDate, &e.RecurringParentID)
	if err != nil {
		return core.Expense{}, err
	}
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s date: %w", e.ID, err)
	}
	if e.EndDate, err = core.ParseDate(endDate); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s end date: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Expense{}, err
	}
	e.Status = core.ExpenseStatus(status)
	e.Frequency = core.Frequency(frequency)
	e.SplitEqually = split != 0
	e.IsRecurring = recurring != 0
	e.HasEndDate = hasEndDt != 0
	return e, nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateExpense implements backend.ExpenseStore
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if e.Status == "" {
		e.Status = core.StatusPending
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.Date.String(), e.Description, e.Amount.Agorot, e.Category, e.ChildID,
		e.PaidByID, boolInt(e.SplitEqually), string(e.Status), e.CreatedBy, e.ReceiptURL, formatTime(e.CreatedAt),
		boolInt(e.IsRecurring), string(e.Frequency), boolInt(e.HasEndDate), e.EndDate.String(), e.RecurringParentID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, core.ErrAlreadyExists)
		}
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	r.logger.DebugContext(ctx, "Expense saved to SQLite",
		"expense_id", e.ID,
		"account_id", e.AccountID,
		"amount_agorot", e.Amount.Agorot,
		"status", e.Status)
	return e, nil
}

// GetExpense implements backend.ExpenseStore
func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, notFound(err, "get expense "+id)
	}
	return e, nil
}

// ListExpenses implements backend.ExpenseLister. Period bounds are pushed down
// to the date index; the remaining criteria are plain column filters.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, accountID string, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE account_id = ?`
	args := []any{accountID}

	if start, end, ok := f.Period.Bounds(); ok && f.Period.Type != "" {
		query += ` AND date >= ? AND date < ?`
		args = append(args, start.String(), end.String())
	}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.ChildID != "" {
		query += ` AND child_id = ?`
		args = append(args, f.ChildID)
	}
	if f.Category != "" {
		query += ` AND category = ? COLLATE NOCASE`
		args = append(args, f.Category)
	}
	query += ` ORDER BY date, created_at`

	out, err := r.queryExpenses(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

// resolveMiss explains why a conditional update touched no row.
func (r *SQLiteRepository) resolveMiss(ctx context.Context, id string, expected core.ExpenseStatus) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM expenses WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read expense status: %w", err)
	}
	return fmt.Errorf("expense %s is %s, expected %s: %w", id, status, expected, core.ErrConflict)
}

// UpdatePendingExpense implements backend.ExpenseStore
func (r *SQLiteRepository) UpdatePendingExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE expenses
		SET date = ?, description = ?, amount_agorot = ?, category = ?, child_id = ?,
		    paid_by_id = ?, split_equally = ?, receipt_url = ?
		WHERE id = ? AND status = ?`,
		e.Date.String(), e.Description, e.Amount.Agorot, e.Category, e.ChildID,
		e.PaidByID, boolInt(e.SplitEqually), e.ReceiptURL,
		e.ID, string(core.StatusPending))
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.resolveMiss(ctx, e.ID, core.StatusPending)
	}
	return nil
}

// TransitionExpense implements backend.ExpenseStore
func (r *SQLiteRepository) TransitionExpense(ctx context.Context, id string, from, to core.ExpenseStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("transition expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.resolveMiss(ctx, id, from)
	}
	r.logger.InfoContext(ctx, "Expense status changed", "expense_id", id, "from", from, "to", to)
	return nil
}

// ListRecurringTemplates implements backend.ExpenseStore
func (r *SQLiteRepository) ListRecurringTemplates(ctx context.Context) ([]core.Expense, error) {
	out, err := r.queryExpenses(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE is_recurring = 1 AND recurring_parent_id = '' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	return out, nil
}

// LatestInstanceDate implements backend.ExpenseStore
func (r *SQLiteRepository) LatestInstanceDate(ctx context.Context, templateID string) (core.Date, bool, error) {
	var latest sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM expenses WHERE recurring_parent_id = ?`, templateID).Scan(&latest)
	if err != nil {
		return core.Date{}, false, fmt.Errorf("latest instance date: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return core.Date{}, false, nil
	}
	d, err := core.ParseDate(latest.String)
	if err != nil {
		return core.Date{}, false, err
	}
	return d, true, nil
}

// ListUnmirrored implements backend.ExpenseStore
func (r *SQLiteRepository) ListUnmirrored(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = -1
	}
	out, err := r.queryExpenses(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE mirrored_at = '' AND status IN (?, ?)
		ORDER BY created_at LIMIT ?`,
		string(core.StatusApproved), string(core.StatusPaid), limit)
	if err != nil {
		return nil, fmt.Errorf("list unmirrored expenses: %w", err)
	}
	return out, nil
}

// MarkMirrored implements backend.ExpenseStore
func (r *SQLiteRepository) MarkMirrored(ctx context.Context, id, ref string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET mirror_ref = ?, mirrored_at = ? WHERE id = ?`,
		ref, formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("mark expense mirrored: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return nil
}
