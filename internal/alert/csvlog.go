package alert

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Header is the CSV header of the alert file.
const Header = "timestamp,kind,transaction_id,source_account_id,destination_account_id,amount,details"

const (
	numFields      = 7
	colTimestamp   = 0
	colKind        = 1
	colTransaction = 2
	colSource      = 3
	colDestination = 4
	colAmount      = 5
	colDetails     = 6
)

// MarshalAlert converts an Alert to a CSV row.
func MarshalAlert(a Alert) []string {
	row := make([]string, numFields)
	row[colTimestamp] = a.Time.UTC().Format(time.RFC3339Nano)
	row[colKind] = string(a.Kind)
	row[colTransaction] = a.TransactionID
	row[colSource] = a.SourceAccountID
	row[colDestination] = a.DestinationAccountID
	row[colAmount] = a.Amount.String()
	row[colDetails] = a.Details
	return row
}

// UnmarshalAlert converts a CSV row to an Alert.
func UnmarshalAlert(record []string) (Alert, error) {
	if len(record) != numFields {
		return Alert{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339Nano, record[colTimestamp])
	if err != nil {
		return Alert{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return Alert{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	return Alert{
		Time:                 ts,
		Kind:                 Kind(record[colKind]),
		TransactionID:        record[colTransaction],
		SourceAccountID:      record[colSource],
		DestinationAccountID: record[colDestination],
		Amount:               amount,
		Details:              record[colDetails],
	}, nil
}

// File appends alerts to a CSV file, creating it with a header if needed.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns an Alerter that appends to path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

func (f *File) Emit(_ context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Append(f.path, []Alert{a})
}

// Append writes alerts to path, creating the file and header if needed.
func Append(path string, alerts []Alert) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating alert dir: %w", err)
		}
	}

	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening alert file: %w", err)
	}
	defer fh.Close()

	cw := csv.NewWriter(fh)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, a := range alerts {
		if err := cw.Write(MarshalAlert(a)); err != nil {
			return fmt.Errorf("writing alert %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing alert file: %w", err)
	}
	return fh.Sync()
}

// Read returns every alert in path. A missing file yields no alerts.
func Read(path string) ([]Alert, error) {
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening alert file: %w", err)
	}
	defer fh.Close()

	return ReadAlerts(fh)
}

// ReadAlerts parses an alert CSV stream including its header.
func ReadAlerts(r io.Reader) ([]Alert, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading alert CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	alerts := make([]Alert, 0, len(records)-1)
	for i, rec := range records[1:] {
		a, err := UnmarshalAlert(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
