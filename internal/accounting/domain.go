package accounting

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger account labels used by the posting sources.
const (
	AccountCash         = "Cash"
	AccountMpesa        = "M-Pesa"
	AccountReceivable   = "Accounts Receivable"
	AccountSalesRevenue = "Sales Revenue"
	AccountVATPayable   = "VAT Payable"
)

// Entry is a single journal line. Exactly one of Debit/Credit is non-zero.
// Entries are immutable once written; corrections are made with offsetting
// entries, never in-place edits.
type Entry struct {
	ID          int64           `json:"id"`
	Date        time.Time       `json:"date"`
	Account     string          `json:"account"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
	UserID      int64           `json:"user_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

var (
	// ErrUnbalanced indicates the group's debits and credits do not match.
	ErrUnbalanced = errors.New("accounting: journal group not balanced")
	// ErrMalformedEntry indicates a line with both or neither side set.
	ErrMalformedEntry = errors.New("accounting: entry must have exactly one of debit or credit")
)

// Debit builds a debit-side entry.
func Debit(account string, amount decimal.Decimal, description string) Entry {
	return Entry{Account: account, Debit: amount, Description: description}
}

// Credit builds a credit-side entry.
func Credit(account string, amount decimal.Decimal, description string) Entry {
	return Entry{Account: account, Credit: amount, Description: description}
}

// Balanced verifies the group invariant before any insert: every line has
// exactly one positive side and the sides sum to the same total.
func Balanced(entries []Entry) error {
	if len(entries) == 0 {
		return errors.New("accounting: empty journal group")
	}
	debits := decimal.Zero
	credits := decimal.Zero
	for _, e := range entries {
		hasDebit := e.Debit.IsPositive()
		hasCredit := e.Credit.IsPositive()
		if hasDebit == hasCredit || e.Debit.IsNegative() || e.Credit.IsNegative() {
			return ErrMalformedEntry
		}
		debits = debits.Add(e.Debit)
		credits = credits.Add(e.Credit)
	}
	if !debits.Equal(credits) {
		return ErrUnbalanced
	}
	return nil
}
