package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/fieldops/backend/domain"
)

type fakeDirectory struct {
	employees map[string]*EmployeeSnapshot
	err       error
}

func (f *fakeDirectory) Resolve(ctx context.Context, employeeID string) (*EmployeeSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snapshot, ok := f.employees[employeeID]
	if !ok {
		return nil, domain.NewError(domain.ErrCodeNotFound, "", "employee not found")
	}
	return snapshot, nil
}

type fakeTimeEntries struct {
	durations map[string]int
	err       error
}

func (f *fakeTimeEntries) Durations(ctx context.Context, refs []string) (map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]int, len(refs))
	for _, ref := range refs {
		out[ref] = f.durations[ref]
	}
	return out, nil
}

type fakeContracts struct {
	prices map[string]float64
	err    error
}

func (f *fakeContracts) Price(ctx context.Context, contractID string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.prices[contractID], nil
}

func (f *fakeContracts) Label(ctx context.Context, contractID string) (string, error) {
	return "contract " + contractID, nil
}

type fakeInvoices struct {
	ref, lineID string
	err         error
	calls       int
}

func (f *fakeInvoices) Attach(ctx context.Context, jobID string, finance domain.JobFinance) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return f.ref, f.lineID, nil
}

type fakeCache struct {
	mu            sync.Mutex
	pages         map[string][]byte
	invalidations int
}

func newFakeCache() *fakeCache {
	return &fakeCache{pages: make(map[string][]byte)}
}

func (f *fakeCache) GetPage(ctx context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.pages[key]
	return payload, ok
}

func (f *fakeCache) SetPage(ctx context.Context, tenant, key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[key] = payload
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, tenant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	f.pages = make(map[string][]byte)
	return nil
}

// fakeClock lets lifecycle tests move time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
