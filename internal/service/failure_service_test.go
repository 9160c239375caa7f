package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/failures"
)

func TestFailureServiceFixContact(t *testing.T) {
	t.Parallel()

	store := newMemStore(defaultSettings())
	student := store.addStudent(domain.Student{Name: "Mona", Contact: "0100123"})
	log := newFailureStore(t)
	if _, err := log.Record(failures.Entry{Contact: "0100123", Reason: domain.ReasonInvalidFormat}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := log.Record(failures.Entry{Contact: "0199999", Reason: domain.ReasonChannelRejected}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	svc, err := NewFailureService(store.Students(), log, nil)
	if err != nil {
		t.Fatalf("NewFailureService() error = %v", err)
	}

	result, err := svc.FixContact(context.Background(), student.ID, " 01001234567 ")
	if err != nil {
		t.Fatalf("FixContact() error = %v", err)
	}
	if result.Student.Contact != "01001234567" || store.student(student.ID).Contact != "01001234567" {
		t.Fatalf("contact not updated: %+v", result.Student)
	}
	if result.PreviousEntry == nil || result.PreviousEntry.Reason != domain.ReasonInvalidFormat {
		t.Fatalf("previous entry = %+v", result.PreviousEntry)
	}
	if _, ok, _ := log.Get("0100123"); ok {
		t.Fatal("old contact must be removed from the failure store")
	}
	if summary, err := svc.Summary(); err != nil || summary.Total != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	if _, err := svc.FixContact(context.Background(), "missing", "0100"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if _, err := svc.FixContact(context.Background(), student.ID, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestFailureServiceRemoveAndExport(t *testing.T) {
	t.Parallel()

	log := newFailureStore(t)
	_, _ = log.Record(failures.Entry{Contact: "0100", Reason: domain.ReasonNoSendAffordance})
	svc, err := NewFailureService(newMemStore(nil).Students(), log, nil)
	if err != nil {
		t.Fatalf("NewFailureService() error = %v", err)
	}

	var buf bytes.Buffer
	if err := svc.Export(&buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(buf.String(), domain.ReasonNoSendAffordance.Description()) {
		t.Fatalf("report = %q", buf.String())
	}

	if err := svc.Remove("unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Remove() error = %v, want ErrNotFound", err)
	}
	if err := svc.Remove("0100"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if records, err := svc.Records(); err != nil || len(records) != 0 {
		t.Fatal("record should be removed")
	}
}
