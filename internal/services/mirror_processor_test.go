package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coparent/internal/core"
	sheetsmem "coparent/internal/sheets/memory"
)

func TestDefaultMirrorProcessorConfig(t *testing.T) {
	config := DefaultMirrorProcessorConfig()

	if config.PollInterval != 30*time.Second {
		t.Errorf("expected PollInterval 30s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
}

func TestMirrorProcessBatch(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	child, err := f.store.CreateChild(ctx, core.Child{AccountID: f.account.ID, Name: "Noa"})
	require.NoError(t, err)

	approved, err := f.expenses.CreateExpense(ctx, dana, f.account.ID, core.Expense{
		Date: core.NewDate(2024, 6, 1), Description: "Shoes", Amount: core.Money{Agorot: 24990},
		Category: "Clothes", ChildID: child.ID, PaidByID: dana, SplitEqually: true,
	})
	require.NoError(t, err)
	f.expense(t, dana, yoni, 1000, core.NewDate(2024, 6, 2))

	writer := sheetsmem.New()
	p := NewMirrorProcessor(f.store, writer, DefaultMirrorProcessorConfig(), nil)

	assert.Equal(t, 1, p.ProcessBatch(ctx), "pending expenses are not mirrored")
	rows := writer.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, approved.ID, rows[0].Expense.ID)
	assert.Equal(t, "Home", rows[0].AccountName)
	assert.Equal(t, "Dana", rows[0].PayerName)
	assert.Equal(t, "Noa", rows[0].ChildName)

	assert.Zero(t, p.ProcessBatch(ctx), "already mirrored")
}

func TestMirrorRetriesFailedRows(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	f.expense(t, dana, dana, 1000, core.NewDate(2024, 6, 1))

	writer := sheetsmem.New()
	writer.FailWith(errors.New("quota exceeded"))
	p := NewMirrorProcessor(f.store, writer, DefaultMirrorProcessorConfig(), nil)

	assert.Zero(t, p.ProcessBatch(ctx))
	writer.FailWith(nil)
	assert.Equal(t, 1, p.ProcessBatch(ctx))
	assert.Len(t, writer.Rows(), 1)
}

func TestMirrorProcessor_StartStop(t *testing.T) {
	f := newFamily(t)
	config := DefaultMirrorProcessorConfig()
	config.PollInterval = 10 * time.Millisecond
	p := NewMirrorProcessor(f.store, sheetsmem.New(), config, nil)

	if p.IsRunning() {
		t.Fatal("processor should not be running initially")
	}
	require.NoError(t, p.Stop(context.Background()), "stop when not running is a no-op")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	assert.Error(t, p.Start(ctx), "second start fails")
	assert.True(t, p.IsRunning())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
}
