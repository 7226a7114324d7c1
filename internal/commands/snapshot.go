package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/fintech-dev/ledger/internal/accounts"
	"github.com/fintech-dev/ledger/internal/journal"
	"github.com/fintech-dev/ledger/internal/store/memory"
)

// The memory driver keeps its state in storage.data_dir between
// invocations. Each save writes a new generation directory and then
// switches currentFile to name it, so readers never see accounts from one
// save next to transactions from another.
const (
	accountsFile     = "accounts.csv"
	transactionsFile = "transactions.csv"
	currentFile      = "CURRENT"
	lockFile         = ".lock"
	generationPrefix = "snap-"
)

const lockRetryDelay = 10 * time.Millisecond

// lockDataDir takes the data_dir lock, exclusive when the caller will save
// and shared otherwise. It gives up after timeout when timeout is positive.
func lockDataDir(ctx context.Context, dir string, exclusive bool, timeout time.Duration) (unlock func() error, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fl := flock.New(filepath.Join(dir, lockFile))
	var locked bool
	if exclusive {
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("locking data directory %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("locking data directory %s: held by another process", dir)
	}
	return fl.Unlock, nil
}

// loadSnapshot fills s from the current generation in dir. A missing
// directory is an empty ledger. A dir without currentFile is read as flat
// files.
func loadSnapshot(ctx context.Context, s *memory.TxStore, dir string) error {
	gen, _, err := currentGeneration(dir)
	if err != nil {
		return err
	}
	src := dir
	if gen != "" {
		src = filepath.Join(dir, gen)
	}

	accts, err := readSnapshotFile(filepath.Join(src, accountsFile), accounts.ReadAccounts)
	if err != nil {
		return err
	}
	for _, acct := range accts {
		if err := s.Create(ctx, acct); err != nil {
			return fmt.Errorf("loading account %s: %w", acct.ID, err)
		}
	}

	txns, err := readSnapshotFile(filepath.Join(src, transactionsFile), journal.ReadTransactions)
	if err != nil {
		return err
	}
	for _, txn := range txns {
		if _, err := s.Append(ctx, txn); err != nil {
			return fmt.Errorf("loading transaction %s: %w", txn.ID, err)
		}
	}
	return nil
}

// saveSnapshot writes s to a new generation in dir and makes it current.
// Older generations are removed once the switch is done.
func saveSnapshot(ctx context.Context, s *memory.TxStore, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	accts, err := s.List(ctx)
	if err != nil {
		return err
	}
	txns, err := s.Transactions(ctx)
	if err != nil {
		return err
	}

	_, n, err := currentGeneration(dir)
	if err != nil {
		return err
	}
	gen := fmt.Sprintf("%s%06d", generationPrefix, n+1)
	genDir := filepath.Join(dir, gen)
	// Left over from a save that died before switching.
	if err := os.RemoveAll(genDir); err != nil {
		return fmt.Errorf("clearing %s: %w", genDir, err)
	}
	if err := os.Mkdir(genDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", genDir, err)
	}

	if err := writeFileAtomic(filepath.Join(genDir, accountsFile), func(w io.Writer) error {
		return accounts.WriteAccounts(w, accts)
	}); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(genDir, transactionsFile), func(w io.Writer) error {
		return journal.WriteTransactions(w, txns)
	}); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, currentFile), func(w io.Writer) error {
		_, err := io.WriteString(w, gen+"\n")
		return err
	}); err != nil {
		return err
	}

	return removeStale(dir, gen)
}

// currentGeneration returns the generation named by dir's currentFile and
// its sequence number, or "" and 0 when there is none yet.
func currentGeneration(dir string) (string, int, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("reading %s: %w", currentFile, err)
	}

	gen := strings.TrimSpace(string(data))
	n, err := strconv.Atoi(strings.TrimPrefix(gen, generationPrefix))
	if !strings.HasPrefix(gen, generationPrefix) || err != nil {
		return "", 0, fmt.Errorf("%s names %q, not a snapshot generation", currentFile, gen)
	}
	return gen, n, nil
}

// removeStale drops every generation in dir except keep, along with flat
// files from before generations existed.
func removeStale(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		stale := (e.IsDir() && strings.HasPrefix(name, generationPrefix) && name != keep) ||
			(!e.IsDir() && (name == accountsFile || name == transactionsFile))
		if stale {
			errs = append(errs, os.RemoveAll(filepath.Join(dir, name)))
		}
	}
	return errors.Join(errs...)
}

func readSnapshotFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	rows, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
