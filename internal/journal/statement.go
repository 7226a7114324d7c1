package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
)

// StatementHeader is the CSV header of an account statement.
const StatementHeader = "transaction_id,created_at,direction,counterparty_account_id,amount,status,description"

// Direction of a transaction as seen from one account.
const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"
)

// Line is one statement row.
type Line struct {
	Transaction  model.Transaction
	Direction    string
	Counterparty string
	Signed       decimal.Decimal // negative for debits
}

// Lines projects txns onto accountID. Transactions that do not touch the
// account are skipped.
func Lines(accountID string, txns []model.Transaction) []Line {
	lines := make([]Line, 0, len(txns))
	for _, t := range txns {
		switch accountID {
		case t.SourceAccountID:
			lines = append(lines, Line{Transaction: t, Direction: DirectionDebit, Counterparty: t.DestinationAccountID, Signed: t.Amount.Neg()})
		case t.DestinationAccountID:
			lines = append(lines, Line{Transaction: t, Direction: DirectionCredit, Counterparty: t.SourceAccountID, Signed: t.Amount})
		}
	}
	return lines
}

// WriteStatement writes the statement of accountID with a header.
func WriteStatement(w io.Writer, accountID string, txns []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(StatementHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, l := range Lines(accountID, txns) {
		row := []string{
			l.Transaction.ID,
			l.Transaction.CreatedAt.UTC().Format(timeFormat),
			l.Direction,
			l.Counterparty,
			l.Signed.String(),
			string(l.Transaction.Status),
			l.Transaction.Description,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
