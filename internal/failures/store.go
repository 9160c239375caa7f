// Package failures persists delivery failures per guardian contact: an
// append-only CSV line log plus a JSON record file updated in place.
package failures

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

var logHeader = []string{"timestamp", "contact", "event", "reason", "detail"}

var reportHeader = []string{
	"contact", "reason", "reason_description", "detail", "last_event",
	"attempts", "first_attempt", "last_attempt",
}

// Entry is one failed delivery to record.
type Entry struct {
	Contact string
	Event   domain.EventTag
	Reason  domain.FailureReason
	Detail  string
	At      time.Time
}

type Summary struct {
	Total    int                          `json:"total"`
	ByReason map[domain.FailureReason]int `json:"byReason"`
}

// Store keeps no state between calls: every operation reloads the record file
// under an advisory file lock, so the API process and the operator CLI can
// work on the same files.
type Store struct {
	logPath     string
	recordsPath string
	lock        *flock.Flock
	now         func() time.Time

	mu sync.Mutex
}

// Open checks that the record file at recordsPath, if any, is readable. Both
// files are created on first write.
func Open(logPath, recordsPath string) (*Store, error) {
	if strings.TrimSpace(logPath) == "" || strings.TrimSpace(recordsPath) == "" {
		return nil, fmt.Errorf("failure log and record paths are required")
	}
	if err := os.MkdirAll(filepath.Dir(recordsPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create failure record dir: %w", err)
	}

	s := &Store{
		logPath:     logPath,
		recordsPath: recordsPath,
		lock:        flock.New(recordsPath + ".lock"),
		now:         time.Now,
	}
	if err := s.read(func(map[string]domain.FailureRecord) error { return nil }); err != nil {
		return nil, err
	}
	return s, nil
}

// Record appends entry to the line log and upserts the contact's record. A
// repeat contact has its attempt count incremented and its latest reason,
// detail and timestamps refreshed.
func (s *Store) Record(entry Entry) (domain.FailureRecord, error) {
	contact := strings.TrimSpace(entry.Contact)
	if contact == "" {
		return domain.FailureRecord{}, fmt.Errorf("%w: contact is required", domain.ErrValidation)
	}
	at := entry.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	var record domain.FailureRecord
	err := s.update(func(records map[string]domain.FailureRecord) (bool, error) {
		if err := s.appendLog(contact, entry, at); err != nil {
			return false, err
		}

		var ok bool
		record, ok = records[contact]
		if !ok {
			record = domain.FailureRecord{Contact: contact, FirstAttempt: at}
		}
		record.Attempts++
		record.Reason = entry.Reason
		record.Detail = entry.Detail
		record.LastEvent = entry.Event
		record.LastAttempt = at

		records[contact] = record
		return true, nil
	})
	if err != nil {
		return domain.FailureRecord{}, err
	}
	return record, nil
}

// Records returns every record, most recent failure first.
func (s *Store) Records() ([]domain.FailureRecord, error) {
	var sorted []domain.FailureRecord
	err := s.read(func(records map[string]domain.FailureRecord) error {
		sorted = sortRecords(records)
		return nil
	})
	return sorted, err
}

func (s *Store) Get(contact string) (domain.FailureRecord, bool, error) {
	var (
		record domain.FailureRecord
		ok     bool
	)
	err := s.read(func(records map[string]domain.FailureRecord) error {
		record, ok = records[strings.TrimSpace(contact)]
		return nil
	})
	return record, ok, err
}

func (s *Store) Summary() (Summary, error) {
	summary := Summary{ByReason: make(map[domain.FailureReason]int)}
	err := s.read(func(records map[string]domain.FailureRecord) error {
		summary.Total = len(records)
		for _, record := range records {
			summary.ByReason[record.Reason]++
		}
		return nil
	})
	return summary, err
}

// ExportCSV writes the flattened operator report.
func (s *Store) ExportCSV(w io.Writer) error {
	records, err := s.Records()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Contact,
			r.Reason.String(),
			r.Reason.Description(),
			r.Detail,
			r.LastEvent.String(),
			strconv.Itoa(r.Attempts),
			r.FirstAttempt.Format(time.RFC3339),
			r.LastAttempt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Remove drops the contact's record and reports whether one existed.
func (s *Store) Remove(contact string) (bool, error) {
	key := strings.TrimSpace(contact)

	var removed bool
	err := s.update(func(records map[string]domain.FailureRecord) (bool, error) {
		if _, ok := records[key]; !ok {
			return false, nil
		}
		delete(records, key)
		removed = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Clear drops every record. The line log is left untouched.
func (s *Store) Clear() error {
	return s.update(func(records map[string]domain.FailureRecord) (bool, error) {
		clear(records)
		return true, nil
	})
}

// read runs fn over a fresh copy of the record file under a shared lock.
func (s *Store) read(fn func(records map[string]domain.FailureRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("failed to lock failure records: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	records, err := s.load()
	if err != nil {
		return err
	}
	return fn(records)
}

// update runs fn over a fresh copy of the record file under an exclusive lock
// and writes the result back when fn reports a change.
func (s *Store) update(fn func(records map[string]domain.FailureRecord) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock failure records: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	records, err := s.load()
	if err != nil {
		return err
	}
	changed, err := fn(records)
	if err != nil || !changed {
		return err
	}
	return s.persist(records)
}

func (s *Store) load() (map[string]domain.FailureRecord, error) {
	records := make(map[string]domain.FailureRecord)

	data, err := os.ReadFile(s.recordsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return records, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read failure records: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse failure records %s: %w", s.recordsPath, err)
	}
	return records, nil
}

func sortRecords(byContact map[string]domain.FailureRecord) []domain.FailureRecord {
	records := make([]domain.FailureRecord, 0, len(byContact))
	for _, r := range byContact {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].LastAttempt.Equal(records[j].LastAttempt) {
			return records[i].LastAttempt.After(records[j].LastAttempt)
		}
		return records[i].Contact < records[j].Contact
	})
	return records
}

func (s *Store) appendLog(contact string, entry Entry, at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create failure log dir: %w", err)
	}

	f, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat failure log: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(logHeader); err != nil {
			return fmt.Errorf("failed to write failure log header: %w", err)
		}
	}
	row := []string{
		at.Format(time.RFC3339),
		contact,
		entry.Event.String(),
		entry.Reason.String(),
		entry.Detail,
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("failed to append failure log: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// persist rewrites the record file through a temp file and rename so a crash
// never leaves it half written.
func (s *Store) persist(records map[string]domain.FailureRecord) error {
	dir := filepath.Dir(s.recordsPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create failure record dir: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal failure records: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.recordsPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write failure records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close failure records: %w", err)
	}
	if err := os.Rename(tmpName, s.recordsPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace failure records: %w", err)
	}
	return nil
}
