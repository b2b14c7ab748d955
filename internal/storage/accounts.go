package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coparent/internal/core"
)

// CreateAccount implements backend.AccountStore
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account, owner core.AccountMember) (core.Account, error) {
	if strings.TrimSpace(a.Name) == "" {
		return core.Account{}, core.ErrEmptyName
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}
	if owner.JoinedAt.IsZero() {
		owner.JoinedAt = a.CreatedAt
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO accounts
		(id, name, owner_id, subscription_status, trial_ends_at, plan_slug, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.OwnerID, string(a.SubscriptionStatus), formatTime(a.TrialEndsAt), a.PlanSlug, formatTime(a.CreatedAt))
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO account_members (account_id, user_id, user_name, role, joined_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, owner.UserID, owner.UserName, string(owner.Role), formatTime(owner.JoinedAt))
	if err != nil {
		return core.Account{}, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Account{}, fmt.Errorf("commit account: %w", err)
	}
	return a, nil
}

const accountColumns = `a.id, a.name, a.owner_id, a.subscription_status, a.trial_ends_at, a.plan_slug, a.created_at`

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a                  core.Account
		status             string
		trialEnds, created string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.OwnerID, &status, &trialEnds, &a.PlanSlug, &created); err != nil {
		return core.Account{}, err
	}
	a.SubscriptionStatus = core.SubscriptionStatus(status)
	var err error
	if a.TrialEndsAt, err = parseTime(trialEnds); err != nil {
		return core.Account{}, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return core.Account{}, err
	}
	return a, nil
}

// GetAccount implements backend.AccountStore
func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = ?`, id))
	if err != nil {
		return core.Account{}, notFound(err, "get account "+id)
	}
	return a, nil
}

// ListAccountsForUser implements backend.AccountStore
func (r *SQLiteRepository) ListAccountsForUser(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts a
		JOIN account_members m ON m.account_id = a.id
		WHERE m.user_id = ? ORDER BY a.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListMembers implements backend.MemberLister
func (r *SQLiteRepository) ListMembers(ctx context.Context, accountID string) ([]core.AccountMember, error) {
	ok, err := r.exists(ctx, `SELECT 1 FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("check account: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT m.user_id, COALESCE(NULLIF(m.user_name, ''), u.name, ''), m.role, m.joined_at
		FROM account_members m LEFT JOIN users u ON u.id = m.user_id
		WHERE m.account_id = ? ORDER BY m.joined_at, m.rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := []core.AccountMember{}
	for rows.Next() {
		var (
			m            core.AccountMember
			role, joined string
		)
		if err := rows.Scan(&m.UserID, &m.UserName, &role, &joined); err != nil {
			return nil, err
		}
		m.Role = core.Role(role)
		if m.JoinedAt, err = parseTime(joined); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMember implements backend.AccountStore
func (r *SQLiteRepository) AddMember(ctx context.Context, accountID string, m core.AccountMember) error {
	ok, err := r.exists(ctx, `SELECT 1 FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = r.now().UTC()
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO account_members (account_id, user_id, user_name, role, joined_at)
		VALUES (?, ?, ?, ?, ?)`,
		accountID, m.UserID, m.UserName, string(m.Role), formatTime(m.JoinedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("member %s: %w", m.UserID, core.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember implements backend.AccountStore
func (r *SQLiteRepository) RemoveMember(ctx context.Context, accountID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM account_members WHERE account_id = ? AND user_id = ?`, accountID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member %s: %w", userID, core.ErrNotFound)
	}
	return nil
}

// CreateUser implements backend.UserStore. Empty email or phone are stored
// as NULL so the unique indexes only apply to real values.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, email, phone, name, password_hash, created_at)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`,
		u.ID, u.Email, u.Phone, u.Name, u.PasswordHash, formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return core.User{}, fmt.Errorf("user: %w", core.ErrAlreadyExists)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) getUser(ctx context.Context, where string, arg any) (core.User, error) {
	var (
		u       core.User
		created string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, COALESCE(email, ''), COALESCE(phone, ''), name, password_hash, created_at
		FROM users WHERE `+where, arg).Scan(&u.ID, &u.Email, &u.Phone, &u.Name, &u.PasswordHash, &created)
	if err != nil {
		return core.User{}, notFound(err, "get user")
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return core.User{}, err
	}
	return u, nil
}

// GetUser implements backend.UserStore
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

// GetUserByEmail implements backend.UserStore
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, `email = ?`, email)
}

// GetUserByPhone implements backend.UserStore
func (r *SQLiteRepository) GetUserByPhone(ctx context.Context, phone string) (core.User, error) {
	return r.getUser(ctx, `phone = ?`, phone)
}

const invitationColumns = `id, account_id, email, phone, token, invited_by, status, expires_at, created_at, accepted_by, accepted_at`

func scanInvitation(row rowScanner) (core.Invitation, error) {
	var (
		inv                        core.Invitation
		status                     string
		expires, created, accepted string
	)
	err := row.Scan(&inv.ID, &inv.AccountID, &inv.Email, &inv.Phone, &inv.Token, &inv.InvitedBy,
		&status, &expires, &created, &inv.AcceptedBy, &accepted)
	if err != nil {
		return core.Invitation{}, err
	}
	inv.Status = core.InvitationStatus(status)
	if inv.ExpiresAt, err = parseTime(expires); err != nil {
		return core.Invitation{}, err
	}
	if inv.CreatedAt, err = parseTime(created); err != nil {
		return core.Invitation{}, err
	}
	if inv.AcceptedAt, err = parseTime(accepted); err != nil {
		return core.Invitation{}, err
	}
	return inv, nil
}

// CreateInvitation implements backend.InvitationStore
func (r *SQLiteRepository) CreateInvitation(ctx context.Context, inv core.Invitation) (core.Invitation, error) {
	if inv.ID == "" {
		inv.ID = newID()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO invitations (`+invitationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.AccountID, inv.Email, inv.Phone, inv.Token, inv.InvitedBy, string(inv.Status),
		formatTime(inv.ExpiresAt), formatTime(inv.CreatedAt), inv.AcceptedBy, formatTime(inv.AcceptedAt))
	if isUniqueViolation(err) {
		return core.Invitation{}, fmt.Errorf("invitation: %w", core.ErrAlreadyExists)
	}
	if err != nil {
		return core.Invitation{}, fmt.Errorf("create invitation: %w", err)
	}
	return inv, nil
}

// GetInvitationByToken implements backend.InvitationStore
func (r *SQLiteRepository) GetInvitationByToken(ctx context.Context, token string) (core.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = ?`, token))
	if err != nil {
		return core.Invitation{}, notFound(err, "get invitation")
	}
	return inv, nil
}

// ListInvitations implements backend.InvitationStore
func (r *SQLiteRepository) ListInvitations(ctx context.Context, accountID string) ([]core.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var out []core.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CloseInvitation implements backend.InvitationStore
func (r *SQLiteRepository) CloseInvitation(ctx context.Context, id string, status core.InvitationStatus, by string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invitations SET status = ?, accepted_by = ?, accepted_at = ?
		WHERE id = ? AND status = ?`,
		string(status), by, formatTime(at), id, string(core.InvitationPending))
	if err != nil {
		return fmt.Errorf("close invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	ok, err := r.exists(ctx, `SELECT 1 FROM invitations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("check invitation: %w", err)
	}
	if !ok {
		return fmt.Errorf("invitation %s: %w", id, core.ErrNotFound)
	}
	return fmt.Errorf("invitation %s is no longer pending: %w", id, core.ErrConflict)
}

// CreateBudget implements backend.BudgetStore
func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.ID == "" {
		b.ID = newID()
	}
	cats, err := json.Marshal(b.Categories)
	if err != nil {
		return core.Budget{}, fmt.Errorf("encode categories: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO budgets
		(id, account_id, categories, monthly_amount_agorot, budget_type, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AccountID, string(cats), b.MonthlyAmount.Agorot, string(b.BudgetType), b.StartDate.String(), b.EndDate.String())
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	return b, nil
}

// ListBudgets implements backend.BudgetStore
func (r *SQLiteRepository) ListBudgets(ctx context.Context, accountID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, account_id, categories, monthly_amount_agorot, budget_type, start_date, end_date
		FROM budgets WHERE account_id = ? ORDER BY rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b                  core.Budget
			cats, typ          string
			startDate, endDate string
		)
		if err := rows.Scan(&b.ID, &b.AccountID, &cats, &b.MonthlyAmount.Agorot, &typ, &startDate, &endDate); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cats), &b.Categories); err != nil {
			return nil, fmt.Errorf("decode budget %s categories: %w", b.ID, err)
		}
		b.BudgetType = core.BudgetType(typ)
		if b.StartDate, err = core.ParseDate(startDate); err != nil {
			return nil, err
		}
		if b.EndDate, err = core.ParseDate(endDate); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBudget implements backend.BudgetStore
func (r *SQLiteRepository) DeleteBudget(ctx context.Context, accountID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// CreateChild implements backend.ChildStore
func (r *SQLiteRepository) CreateChild(ctx context.Context, c core.Child) (core.Child, error) {
	if strings.TrimSpace(c.Name) == "" {
		return core.Child{}, core.ErrEmptyName
	}
	if c.ID == "" {
		c.ID = newID()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO children (id, account_id, name, birth_date) VALUES (?, ?, ?, ?)`,
		c.ID, c.AccountID, c.Name, c.BirthDate.String())
	if err != nil {
		return core.Child{}, fmt.Errorf("create child: %w", err)
	}
	return c, nil
}

// ListChildren implements backend.ChildStore
func (r *SQLiteRepository) ListChildren(ctx context.Context, accountID string) ([]core.Child, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, account_id, name, birth_date FROM children
		WHERE account_id = ? ORDER BY rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var out []core.Child
	for rows.Next() {
		var (
			c     core.Child
			birth string
		)
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &birth); err != nil {
			return nil, err
		}
		if c.BirthDate, err = core.ParseDate(birth); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
