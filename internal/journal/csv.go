// Package journal reads and writes transactions as CSV: the full
// transaction log and per-account statements.
package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
)

// Header is the CSV header of a transaction log.
const Header = "transaction_id,created_at,source_account_id,destination_account_id,amount,status,description"

const (
	numFields  = 7
	colID      = 0
	colCreated = 1
	colSource  = 2
	colDest    = 3
	colAmount  = 4
	colStatus  = 5
	colDesc    = 6
	timeFormat = time.RFC3339Nano
)

// ReadTransactions reads a transaction log including its header.
func ReadTransactions(r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading transactions CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	txns := make([]model.Transaction, 0, len(records)-1)
	for i, rec := range records[1:] {
		txn, err := UnmarshalTransaction(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// WriteTransactions writes a transaction log including its header.
func WriteTransactions(w io.Writer, txns []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, txn := range txns {
		if err := cw.Write(MarshalTransaction(txn)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalTransaction converts a Transaction to a CSV row.
func MarshalTransaction(txn model.Transaction) []string {
	row := make([]string, numFields)
	row[colID] = txn.ID
	row[colCreated] = txn.CreatedAt.UTC().Format(timeFormat)
	row[colSource] = txn.SourceAccountID
	row[colDest] = txn.DestinationAccountID
	row[colAmount] = txn.Amount.String()
	row[colStatus] = string(txn.Status)
	row[colDesc] = txn.Description
	return row
}

// UnmarshalTransaction converts a CSV row to a Transaction.
func UnmarshalTransaction(record []string) (model.Transaction, error) {
	if len(record) != numFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	created, err := time.Parse(timeFormat, record[colCreated])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing created_at %q: %w", record[colCreated], err)
	}
	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}
	status := model.TransactionStatus(record[colStatus])
	if !status.Terminal() {
		return model.Transaction{}, fmt.Errorf("unexpected status %q", record[colStatus])
	}

	return model.Transaction{
		ID:                   record[colID],
		SourceAccountID:      record[colSource],
		DestinationAccountID: record[colDest],
		Amount:               amount,
		Description:          record[colDesc],
		CreatedAt:            created,
		Status:               status,
	}, nil
}
