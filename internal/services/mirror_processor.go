package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coparent/internal/backend"
	"coparent/internal/core"
	"coparent/internal/log"
	"coparent/internal/sheets"
)

// MirrorProcessorConfig holds configuration for the mirror processor
type MirrorProcessorConfig struct {
	// PollInterval is how often to look for unmirrored expenses (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of expenses mirrored per poll (default: 10)
	BatchSize int
}

// DefaultMirrorProcessorConfig returns sensible defaults
func DefaultMirrorProcessorConfig() MirrorProcessorConfig {
	return MirrorProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
	}
}

// MirrorProcessor copies approved and paid expenses into the spreadsheet.
// The expenses table is the queue: a row is mirrored once MarkMirrored
// stores the sheet reference, and failed rows are simply picked up again on
// the next poll.
type MirrorProcessor struct {
	store  backend.Store
	sheets sheets.ExpenseWriter
	config MirrorProcessorConfig
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorProcessor(store backend.Store, writer sheets.ExpenseWriter, config MirrorProcessorConfig, logger *log.Logger) *MirrorProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorProcessor{
		store:  store,
		sheets: writer,
		config: config,
		logger: logger.WithComponent(log.ComponentSheets),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *MirrorProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("mirror processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Mirror processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for the current batch.
func (p *MirrorProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Mirror processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Mirror processor stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the processor is currently running
func (p *MirrorProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *MirrorProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch mirrors up to BatchSize expenses and returns how many made it.
func (p *MirrorProcessor) ProcessBatch(ctx context.Context) int {
	items, err := p.store.ListUnmirrored(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list unmirrored expenses", log.FieldError, err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}
	p.logger.DebugContext(ctx, "Processing mirror batch", "count", len(items))

	names := newNameResolver(p.store)
	mirrored := 0
	for _, e := range items {
		if ctx.Err() != nil {
			return mirrored
		}
		if err := p.mirror(ctx, names, e); err != nil {
			p.logger.WarnContext(ctx, "Mirror failed, will retry",
				log.FieldExpenseID, e.ID, log.FieldAccountID, e.AccountID, log.FieldError, err)
			continue
		}
		mirrored++
	}
	return mirrored
}

func (p *MirrorProcessor) mirror(ctx context.Context, names *nameResolver, e core.Expense) error {
	row, err := names.row(ctx, e)
	if err != nil {
		return err
	}
	ref, err := p.sheets.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append to sheet: %w", err)
	}
	if err := p.store.MarkMirrored(ctx, e.ID, ref); err != nil {
		// The row is in the sheet; it will be appended again next poll.
		return fmt.Errorf("mark mirrored: %w", err)
	}
	p.logger.InfoContext(ctx, "Mirrored expense", log.FieldExpenseID, e.ID, "sheets_ref", ref)
	return nil
}

// nameResolver memoizes account, roster and children lookups for one batch.
type nameResolver struct {
	store    backend.Store
	accounts map[string]string
	members  map[string][]core.AccountMember
	children map[string]map[string]string
}

func newNameResolver(store backend.Store) *nameResolver {
	return &nameResolver{
		store:    store,
		accounts: map[string]string{},
		members:  map[string][]core.AccountMember{},
		children: map[string]map[string]string{},
	}
}

func (n *nameResolver) row(ctx context.Context, e core.Expense) (sheets.Row, error) {
	if _, ok := n.accounts[e.AccountID]; !ok {
		a, err := n.store.GetAccount(ctx, e.AccountID)
		if err != nil {
			return sheets.Row{}, fmt.Errorf("load account: %w", err)
		}
		members, err := n.store.ListMembers(ctx, e.AccountID)
		if err != nil {
			return sheets.Row{}, fmt.Errorf("load members: %w", err)
		}
		children, err := n.store.ListChildren(ctx, e.AccountID)
		if err != nil {
			return sheets.Row{}, fmt.Errorf("load children: %w", err)
		}
		byID := make(map[string]string, len(children))
		for _, c := range children {
			byID[c.ID] = c.Name
		}
		n.accounts[e.AccountID] = a.Name
		n.members[e.AccountID] = members
		n.children[e.AccountID] = byID
	}

	payer := e.PaidByID
	if m, ok := core.FindMember(n.members[e.AccountID], e.PaidByID); ok && m.UserName != "" {
		payer = m.UserName
	}
	return sheets.Row{
		Expense:     e,
		AccountName: n.accounts[e.AccountID],
		PayerName:   payer,
		ChildName:   n.children[e.AccountID][e.ChildID],
	}, nil
}
