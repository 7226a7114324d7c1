package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintech-dev/ledger/internal/model"
)

// Header is the CSV header for accounts files. The last three columns are
// optional on import.
const Header = "account_id,account_number,owner_id,account_type,balance,opening_balance,version,created_at"

const (
	numFields    = 8
	minFields    = 5
	colID        = 0
	colNumber    = 1
	colOwner     = 2
	colType      = 3
	colBalance   = 4
	colOpening   = 5
	colVersion   = 6
	colCreatedAt = 7
)

// ReadAccounts reads an accounts CSV including its header.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	accounts := make([]model.Account, 0, len(records)-1)
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes accounts as CSV with a header.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numFields)
	row[colID] = acct.ID
	row[colNumber] = acct.Number
	row[colOwner] = acct.OwnerID
	row[colType] = string(acct.Type)
	row[colBalance] = acct.Balance.String()
	row[colOpening] = acct.OpeningBalance.String()
	row[colVersion] = strconv.FormatInt(acct.Version, 10)
	if !acct.CreatedAt.IsZero() {
		row[colCreatedAt] = acct.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return row
}

// UnmarshalAccount converts a CSV row to an Account. A missing
// opening_balance defaults to balance.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) < minFields || len(record) > numFields {
		return model.Account{}, fmt.Errorf("expected %d to %d fields, got %d", minFields, numFields, len(record))
	}
	field := func(col int) string {
		if col < len(record) {
			return strings.TrimSpace(record[col])
		}
		return ""
	}

	balance, err := decimal.NewFromString(field(colBalance))
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing balance %q: %w", field(colBalance), err)
	}
	acct := model.Account{
		ID:             field(colID),
		Number:         field(colNumber),
		OwnerID:        field(colOwner),
		Type:           model.AccountType(strings.ToUpper(field(colType))),
		Balance:        balance,
		OpeningBalance: balance,
	}

	if v := field(colOpening); v != "" {
		acct.OpeningBalance, err = decimal.NewFromString(v)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing opening_balance %q: %w", v, err)
		}
	}
	if v := field(colVersion); v != "" {
		acct.Version, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing version %q: %w", v, err)
		}
	}
	if v := field(colCreatedAt); v != "" {
		acct.CreatedAt, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing created_at %q: %w", v, err)
		}
	}
	return acct, nil
}
