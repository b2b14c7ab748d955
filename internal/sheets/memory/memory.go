package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "coparent/internal/sheets"
)

// Writer keeps mirrored rows in memory.
type Writer struct {
	mu   sync.Mutex
	rows []ports.Row
	fail error
}

var _ ports.ExpenseWriter = (*Writer)(nil)

func New() *Writer { return &Writer{} }

// FailWith makes every following Append return err; nil clears it.
func (w *Writer) FailWith(err error) {
	w.mu.Lock()
	w.fail = err
	w.mu.Unlock()
}

func (w *Writer) Append(_ context.Context, row ports.Row) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return "", w.fail
	}
	if row.Expense.ID == "" {
		return "", errors.New("mirror row without expense id")
	}
	w.rows = append(w.rows, row)
	return fmt.Sprintf("mem:%d", len(w.rows)+1), nil
}

func (w *Writer) Rows() []ports.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ports.Row(nil), w.rows...)
}
