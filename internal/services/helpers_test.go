package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"realtyportal/internal/database"
	"realtyportal/internal/domain"
	"realtyportal/internal/pdf"
	"realtyportal/internal/store"
)

type sentLOI struct {
	Event domain.NotificationEvent
	LOIID string
	To    string
}

type fakeNotifier struct {
	mu    sync.Mutex
	lois  []sentLOI
	leads []string
	err   error
}

func (f *fakeNotifier) NotifyLOI(_ context.Context, event domain.NotificationEvent, loi *domain.LetterOfIntent, investor *domain.Investor, _ *domain.Prospectus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lois = append(f.lois, sentLOI{Event: event, LOIID: loi.ID, To: investor.Email})
	return f.err
}

func (f *fakeNotifier) NotifyLead(_ context.Context, lead *domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads = append(f.leads, lead.ID)
	return f.err
}

func (f *fakeNotifier) events() []domain.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.NotificationEvent, len(f.lois))
	for i, s := range f.lois {
		out[i] = s.Event
	}
	return out
}

type memUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	n       int
}

func newMemUploader() *memUploader {
	return &memUploader{objects: map[string][]byte{}}
}

func (m *memUploader) Upload(_ context.Context, folder, fileName, _ string, r io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	ref := fmt.Sprintf("test-bucket/%s/%d-%s", folder, m.n, fileName)
	m.objects[ref] = data
	return ref, nil
}

func (m *memUploader) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[ref]
	if !ok {
		return nil, fmt.Errorf("no object %s", ref)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type htmlRenderer struct{}

func (htmlRenderer) Render(_ context.Context, v pdf.View) ([]byte, error) {
	html, err := pdf.RenderHTML(v)
	return []byte(html), err
}

type testEnv struct {
	store      *store.Client
	notifier   *fakeNotifier
	uploader   *memUploader
	dispatch   *Dispatcher
	loi        *LOIService
	leads      *LeadService
	investors  *InvestorService
	prospectus *ProspectusService
	now        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	env := &testEnv{
		store:    store.New(db),
		notifier: &fakeNotifier{},
		uploader: newMemUploader(),
		now:      time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	env.dispatch = NewDispatcher(env.notifier, time.Second)
	env.loi = NewLOIService(LOIServiceOptions{
		Store:             env.store,
		Dispatch:          env.dispatch,
		Uploader:          env.uploader,
		Renderer:          htmlRenderer{},
		StrictTransitions: true,
	})
	env.loi.now = func() time.Time { return env.now }
	env.leads = NewLeadService(env.store, env.dispatch, RateLimit{})
	env.investors = NewInvestorService(env.store, env.uploader)
	env.investors.now = func() time.Time { return env.now }
	env.prospectus = NewProspectusService(env.store)
	return env
}

func (e *testEnv) investor(t *testing.T, name string) *domain.Investor {
	t.Helper()
	inv := &domain.Investor{Name: name, Email: Slugify(name) + "@example.com"}
	require.NoError(t, store.Create(context.Background(), e.store, inv))
	return inv
}

func (e *testEnv) openProspectus(t *testing.T, minimum int64) *domain.Prospectus {
	t.Helper()
	p, err := e.prospectus.Create(context.Background(), CreateProspectusInput{
		Title:             fmt.Sprintf("Harbor View %d", time.Now().UnixNano()),
		Status:            domain.ProspectusOpen,
		MinimumInvestment: decimal.NewFromInt(minimum),
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) submit(t *testing.T, inv *domain.Investor, p *domain.Prospectus, amount int64) *domain.LetterOfIntent {
	t.Helper()
	loi, err := e.loi.Submit(context.Background(), SubmitLOIInput{
		InvestorID:   inv.ID,
		ProspectusID: p.ID,
		Amount:       decimal.NewFromInt(amount),
		IPAddress:    "203.0.113.7",
	})
	require.NoError(t, err)
	// Sends run on their own goroutines; settle this one before the next
	// transition queues another.
	e.dispatch.Wait()
	return loi
}

// A 1x1 transparent PNG.
const signaturePNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
