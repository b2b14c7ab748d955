package core

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	// ReceivableView reads PaidByID as "already paid": a positive balance
	// means the member is owed money.
	ReceivableView View = "receivable"
	// PayableView reads PaidByID as "responsible to pay": a positive balance
	// means the member owes money.
	PayableView View = "payable"
)

// View selects the sign convention of a balance computation.
type View string

// SettledThreshold is the net amount, in shekels, under which two members
// are considered settled.
var SettledThreshold = decimal.NewFromInt(1)

var ErrInvalidView = errors.New("invalid balance view")

type (
	// MemberBalance is one roster member's result. Amount is the sum of all
	// per-expense contributions; Attributed sums only the payer-side
	// contributions of expenses recorded against the member and drives the
	// two-member transfer. Both are in shekels at full precision.
	MemberBalance struct {
		UserID     string
		UserName   string
		Amount     decimal.Decimal
		Attributed decimal.Decimal
	}

	// SkippedExpense is a row excluded from the computation.
	SkippedExpense struct {
		ExpenseID string
		Reason    error
	}

	Balances struct {
		View    View
		Members []MemberBalance
		Skipped []SkippedExpense
	}

	// Transfer is the single payment that settles a two-member account.
	Transfer struct {
		Settled    bool
		FromUserID string
		ToUserID   string
		Amount     decimal.Decimal
	}

	// Settlement is the breakdown of one status bucket.
	Settlement struct {
		Status   ExpenseStatus
		Balances Balances
		Transfer *Transfer // nil unless the roster has exactly two members
	}
)

func (v View) Valid() bool {
	return v == ReceivableView || v == PayableView
}

// Owes converts an amount expressed in v to the "owes" framing.
func (v View) Owes(amount decimal.Decimal) decimal.Decimal {
	if v == ReceivableView {
		return amount.Neg()
	}
	return amount
}

func checkBalanceRow(e Expense) error {
	if e.Amount.Agorot <= 0 {
		return ErrInvalidAmount
	}
	if e.PaidByID == "" {
		return ErrMissingPayer
	}
	return nil
}

// Contributions returns each roster member's contribution from one expense.
// Split expenses give every non-payer -amount/N and the payer
// (amount/N)*(N-1), so the contributions sum to zero. Unsplit expenses
// attribute the whole amount to the payer. A payer missing from the roster
// gets no line. The magnitudes are identical in both views.
func Contributions(e Expense, members []AccountMember) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(members))
	amount := e.Amount.Shekels()

	if !e.SplitEqually {
		if _, ok := FindMember(members, e.PaidByID); ok {
			out[e.PaidByID] = amount
		}
		return out
	}

	n := len(members)
	if n < 1 {
		n = 1
	}
	share := amount.Div(decimal.NewFromInt(int64(n)))
	payerShare := share.Mul(decimal.NewFromInt(int64(n - 1)))

	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		if m.UserID == e.PaidByID {
			out[m.UserID] = payerShare
		} else {
			out[m.UserID] = share.Neg()
		}
	}
	return out
}

// ComputeBalances sums contributions per roster member. Malformed rows are
// reported in Skipped and do not affect the rest. The result follows roster
// order and is deterministic for identical input.
func ComputeBalances(view View, expenses []Expense, members []AccountMember) Balances {
	res := Balances{View: view, Members: []MemberBalance{}}

	amounts := make(map[string]decimal.Decimal, len(members))
	attributed := make(map[string]decimal.Decimal, len(members))
	for _, e := range expenses {
		if err := checkBalanceRow(e); err != nil {
			res.Skipped = append(res.Skipped, SkippedExpense{ExpenseID: e.ID, Reason: err})
			continue
		}
		for id, c := range Contributions(e, members) {
			amounts[id] = amounts[id].Add(c)
			if id == e.PaidByID {
				attributed[id] = attributed[id].Add(c)
			}
		}
	}

	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		res.Members = append(res.Members, MemberBalance{
			UserID:     m.UserID,
			UserName:   m.UserName,
			Amount:     amounts[m.UserID],
			Attributed: attributed[m.UserID],
		})
	}
	return res
}

// ReceivableBalances computes balances in the "already paid" framing.
func ReceivableBalances(expenses []Expense, members []AccountMember) Balances {
	return ComputeBalances(ReceivableView, expenses, members)
}

// PayableBalances computes balances in the "responsible to pay" framing.
func PayableBalances(expenses []Expense, members []AccountMember) Balances {
	return ComputeBalances(PayableView, expenses, members)
}

// Of returns the balance line for userID.
func (b Balances) Of(userID string) (MemberBalance, bool) {
	for _, m := range b.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return MemberBalance{}, false
}

// NetTransfer is owes(a) - owes(b) over the attributed amounts. A positive
// result means a should pay b. NetTransfer(b, a, c) == -NetTransfer(b, c, a).
func NetTransfer(b Balances, a, c string) decimal.Decimal {
	ma, _ := b.Of(a)
	mc, _ := b.Of(c)
	return b.View.Owes(ma.Attributed).Sub(b.View.Owes(mc.Attributed))
}

// RecommendTransfer returns the settling payment for a two-member roster,
// or nil for any other roster size.
func RecommendTransfer(b Balances) *Transfer {
	if len(b.Members) != 2 {
		return nil
	}
	a, c := b.Members[0].UserID, b.Members[1].UserID
	net := NetTransfer(b, a, c)
	if net.Abs().LessThan(SettledThreshold) {
		return &Transfer{Settled: true, Amount: decimal.Zero}
	}
	if net.IsPositive() {
		return &Transfer{FromUserID: a, ToUserID: c, Amount: net}
	}
	return &Transfer{FromUserID: c, ToUserID: a, Amount: net.Neg()}
}

// SettleByStatus computes an independent settlement for each of the
// pending, approved and paid buckets. Buckets are never summed.
func SettleByStatus(view View, expenses []Expense, members []AccountMember) []Settlement {
	out := make([]Settlement, 0, len(SettlementBuckets))
	for _, status := range SettlementBuckets {
		b := ComputeBalances(view, FilterByStatus(expenses, status), members)
		out = append(out, Settlement{
			Status:   status,
			Balances: b,
			Transfer: RecommendTransfer(b),
		})
	}
	return out
}
