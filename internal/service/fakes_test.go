package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/queue"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"github.com/kursadbilgin/attendance-notifier/internal/session"
)

// memStore is an in-memory repository.Store. Transaction snapshots state and
// restores it when fn fails.
type memStore struct {
	mu         sync.Mutex
	settings   *domain.Settings
	students   map[string]*domain.Student
	attendance map[string]domain.AttendanceRecord
	payments   map[string]domain.PaymentRecord

	decrementErr error
	listErrFn    func(studentID string) error
	writes       int
}

func newMemStore(settings *domain.Settings) *memStore {
	return &memStore{
		settings:   settings,
		students:   make(map[string]*domain.Student),
		attendance: make(map[string]domain.AttendanceRecord),
		payments:   make(map[string]domain.PaymentRecord),
	}
}

func defaultSettings() *domain.Settings {
	return &domain.Settings{
		DefaultFreeTries:              3,
		MonthPrice:                    150,
		LateCutoff:                    "09:00",
		LowAttendanceThresholdPercent: 50,
		LowAttendanceWindowDays:       4,
	}
}

func attendanceKey(studentID string, date time.Time) string {
	return studentID + "|" + domain.Day(date).Format(time.DateOnly)
}

func paymentKey(studentID string, month time.Time) string {
	return studentID + "|" + domain.MonthStart(month).Format("2006-01")
}

func (s *memStore) addStudent(st domain.Student) *domain.Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	copied := st
	s.students[st.ID] = &copied
	return &copied
}

func (s *memStore) addAttendance(studentID string, date time.Time, absent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance[attendanceKey(studentID, date)] = domain.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Date:      domain.Day(date),
		Absent:    absent,
	}
}

func (s *memStore) addPayment(studentID string, month time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[paymentKey(studentID, month)] = domain.PaymentRecord{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Month:     domain.MonthStart(month),
	}
}

func (s *memStore) student(id string) domain.Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.students[id]
}

func (s *memStore) record(studentID string, date time.Time) (domain.AttendanceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.attendance[attendanceKey(studentID, date)]
	return r, ok
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memStore) Students() repository.StudentRepository     { return memStudents{s} }
func (s *memStore) Attendance() repository.AttendanceRepository { return memAttendance{s} }
func (s *memStore) Payments() repository.PaymentRepository     { return memPayments{s} }
func (s *memStore) Settings() repository.SettingsRepository    { return memSettings{s} }

func (s *memStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	students := make(map[string]*domain.Student, len(s.students))
	for k, v := range s.students {
		copied := *v
		students[k] = &copied
	}
	attendance := make(map[string]domain.AttendanceRecord, len(s.attendance))
	for k, v := range s.attendance {
		attendance[k] = v
	}
	payments := make(map[string]domain.PaymentRecord, len(s.payments))
	for k, v := range s.payments {
		payments[k] = v
	}
	writes := s.writes
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.students, s.attendance, s.payments, s.writes = students, attendance, payments, writes
		s.mu.Unlock()
		return err
	}
	return nil
}

type memSettings struct{ s *memStore }

func (r memSettings) Get(ctx context.Context) (*domain.Settings, error) {
	if r.s.settings == nil {
		return nil, domain.ErrSettingsMissing
	}
	copied := *r.s.settings
	return &copied, nil
}

type memStudents struct{ s *memStore }

func (r memStudents) Create(ctx context.Context, st *domain.Student) error {
	created := r.s.addStudent(*st)
	*st = *created
	return nil
}

func (r memStudents) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.students[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *st
	return &copied, nil
}

func (r memStudents) GetByBarcode(ctx context.Context, barcode string) (*domain.Student, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.students {
		if st.Barcode == barcode {
			copied := *st
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memStudents) List(ctx context.Context) ([]domain.Student, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Student, 0, len(r.s.students))
	for _, st := range r.s.students {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memStudents) DecrementTrial(ctx context.Context, id string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.decrementErr != nil {
		return 0, r.s.decrementErr
	}
	st, ok := r.s.students[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if st.FreeTries <= 0 {
		return 0, domain.ErrTrialsExhausted
	}
	st.FreeTries--
	r.s.writes++
	return st.FreeTries, nil
}

func (r memStudents) ResetTrials(ctx context.Context, id string, count int, month time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.students[id]
	if !ok {
		return domain.ErrNotFound
	}
	m := domain.MonthStart(month)
	st.FreeTries = count
	st.LastResetMonth = &m
	r.s.writes++
	return nil
}

func (r memStudents) UpdateContact(ctx context.Context, id string, contact string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.students[id]
	if !ok {
		return domain.ErrNotFound
	}
	st.Contact = contact
	r.s.writes++
	return nil
}

type memAttendance struct{ s *memStore }

func (r memAttendance) Create(ctx context.Context, a *domain.AttendanceRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := attendanceKey(a.StudentID, a.Date)
	if _, ok := r.s.attendance[key]; ok {
		return domain.ErrDuplicateRecord
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Date = domain.Day(a.Date)
	r.s.attendance[key] = *a
	r.s.writes++
	return nil
}

func (r memAttendance) Exists(ctx context.Context, studentID string, date time.Time) (bool, error) {
	_, ok := r.s.record(studentID, date)
	return ok, nil
}

func (r memAttendance) ListByStudent(ctx context.Context, studentID string, from, to time.Time) ([]domain.AttendanceRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listErrFn != nil {
		if err := r.s.listErrFn(studentID); err != nil {
			return nil, err
		}
	}
	from, to = domain.Day(from), domain.Day(to)
	out := make([]domain.AttendanceRecord, 0)
	for _, a := range r.s.attendance {
		if a.StudentID == studentID && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r memAttendance) StudentIDsWithRecord(ctx context.Context, date time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	day := domain.Day(date)
	out := make([]string, 0)
	for _, a := range r.s.attendance {
		if a.Date.Equal(day) {
			out = append(out, a.StudentID)
		}
	}
	return out, nil
}

func (r memAttendance) ActiveDates(ctx context.Context, before time.Time, limit int) ([]time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	day := domain.Day(before)
	seen := make(map[time.Time]struct{})
	for _, a := range r.s.attendance {
		if a.Date.Before(day) {
			seen[a.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	if len(dates) > limit {
		dates = dates[:limit]
	}
	return dates, nil
}

func (r memAttendance) CountActiveDays(ctx context.Context, from, to time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	from, to = domain.Day(from), domain.Day(to)
	seen := make(map[time.Time]struct{})
	for _, a := range r.s.attendance {
		if !a.Date.Before(from) && !a.Date.After(to) {
			seen[a.Date] = struct{}{}
		}
	}
	return len(seen), nil
}

type memPayments struct{ s *memStore }

func (r memPayments) GetOrCreate(ctx context.Context, p *domain.PaymentRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := paymentKey(p.StudentID, p.Month)
	if existing, ok := r.s.payments[key]; ok {
		*p = existing
		return false, nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Month = domain.MonthStart(p.Month)
	r.s.payments[key] = *p
	r.s.writes++
	return true, nil
}

func (r memPayments) Exists(ctx context.Context, studentID string, month time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.payments[paymentKey(studentID, month)]
	return ok, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	jobs      []domain.NotificationJob
	publishFn func(ctx context.Context, job domain.NotificationJob) error
}

var _ queue.Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) Publish(ctx context.Context, job domain.NotificationJob) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, job); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []domain.NotificationJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.NotificationJob(nil), f.jobs...)
}

func (f *fakePublisher) events() []domain.EventTag {
	jobs := f.published()
	out := make([]domain.EventTag, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Event)
	}
	return out
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, account string) (bool, error)
	waitFn  func(ctx context.Context, account string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, account string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, account)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, account string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, account)
	}
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, handler queue.JobHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, handler queue.JobHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, handler)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConsumer) Close() error { return nil }

type fakeDispatcher struct {
	dispatchFn func(ctx context.Context, contact, message string) (int, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, contact, message string) (int, error) {
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, contact, message)
	}
	return 1, nil
}

type fakeOutcomeRepo struct {
	mu       sync.Mutex
	outcomes []domain.DeliveryOutcome
	createFn func(ctx context.Context, o *domain.DeliveryOutcome) error
	listFn   func(ctx context.Context, studentID string, limit int) ([]domain.DeliveryOutcome, error)
}

func (f *fakeOutcomeRepo) Create(ctx context.Context, o *domain.DeliveryOutcome) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, o); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, *o)
	return nil
}

func (f *fakeOutcomeRepo) ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.DeliveryOutcome, error) {
	if f.listFn != nil {
		return f.listFn(ctx, studentID, limit)
	}
	return nil, nil
}

func (f *fakeOutcomeRepo) all() []domain.DeliveryOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DeliveryOutcome(nil), f.outcomes...)
}

type fakeBroadcastRepo struct {
	created    *domain.Broadcast
	recipients int
	createFn   func(ctx context.Context, b *domain.Broadcast) error
}

func (f *fakeBroadcastRepo) Create(ctx context.Context, b *domain.Broadcast) error {
	if f.createFn != nil {
		return f.createFn(ctx, b)
	}
	b.ID = uuid.NewString()
	f.created = b
	return nil
}

func (f *fakeBroadcastRepo) GetByID(ctx context.Context, id string) (*domain.Broadcast, error) {
	if f.created == nil || f.created.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.created, nil
}

func (f *fakeBroadcastRepo) MarkSent(ctx context.Context, id string, recipients int, sentAt time.Time) error {
	f.recipients = recipients
	return nil
}

type fakeSweepRunner struct {
	mu    sync.Mutex
	dates []time.Time
	runFn func(ctx context.Context, date time.Time) (*SweepReport, error)
}

func (f *fakeSweepRunner) Run(ctx context.Context, date time.Time) (*SweepReport, error) {
	f.mu.Lock()
	f.dates = append(f.dates, date)
	f.mu.Unlock()
	if f.runFn != nil {
		return f.runFn(ctx, date)
	}
	return &SweepReport{Date: date}, nil
}

func (f *fakeSweepRunner) runs() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.dates...)
}

type fakeChannelSession struct {
	sendFn func(ctx context.Context, target session.Target) error

	mu     sync.Mutex
	sent   []session.Target
	closed bool
}

func (f *fakeChannelSession) Send(ctx context.Context, target session.Target) error {
	f.mu.Lock()
	f.sent = append(f.sent, target)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, target)
	}
	return nil
}

func (f *fakeChannelSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannelSession) state() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent), f.closed
}

// fakeLauncher hands out sessions in order, one per launch.
type fakeLauncher struct {
	mu       sync.Mutex
	sessions []*fakeChannelSession
	launches int
}

func (f *fakeLauncher) Launch(ctx context.Context) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launches >= len(f.sessions) {
		return nil, errors.New("no more sessions")
	}
	s := f.sessions[f.launches]
	f.launches++
	return s, nil
}

func (f *fakeLauncher) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}
