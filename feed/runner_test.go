package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/emitter"
	"github.com/ripkitten-co/giftcard/internal/codecs"
	"github.com/ripkitten-co/giftcard/projection"
	"github.com/ripkitten-co/giftcard/readmodel"
)

type memLog struct {
	mu      sync.Mutex
	records []Record
	reads   int
	failAt  int
}

func (l *memLog) add(t *testing.T, evts ...projection.Event) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range evts {
		r, err := Encode(codecs.NewJSONIter(), e)
		if err != nil {
			t.Fatal(err)
		}
		r.Position = int64(len(l.records) + 1)
		l.records = append(l.records, r)
	}
}

func (l *memLog) addRaw(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r.Position = int64(len(l.records) + 1)
	l.records = append(l.records, r)
}

func (l *memLog) ReadAfter(_ context.Context, after int64, limit int) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.failAt > 0 && l.reads == l.failAt {
		return nil, errors.New("connection reset")
	}
	var out []Record
	for _, r := range l.records {
		if r.Position > after && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type memCheckpoints struct {
	mu  sync.Mutex
	pos map[string]int64
}

func (c *memCheckpoints) Load(_ context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos[name], nil
}

func (c *memCheckpoints) Save(_ context.Context, name string, p int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos == nil {
		c.pos = make(map[string]int64)
	}
	c.pos[name] = p
	return nil
}

// flakyApplier fails with an infrastructure error the first time it sees the
// given card.
type flakyApplier struct {
	next   Applier
	card   string
	failed bool
}

func (f *flakyApplier) Apply(ctx context.Context, e projection.Event) (emitter.Notification, error) {
	if e.CardID() == f.card && !f.failed {
		f.failed = true
		return emitter.Notification{}, errors.New("deadlock detected")
	}
	return f.next.Apply(ctx, e)
}

type fakeLock struct {
	held     bool
	deny     bool
	acquires int
	releases int
}

func (l *fakeLock) TryAcquire(context.Context) (bool, error) {
	l.acquires++
	if l.deny {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.releases++
	l.held = false
	return nil
}

func TestProcessBatch_AppliesInOrderAndCheckpoints(t *testing.T) {
	repo := readmodel.NewMemoryStore()
	log := &memLog{}
	cp := &memCheckpoints{}
	log.add(t,
		projection.Issued{ID: "card-1", Amount: 100},
		projection.Redeemed{ID: "card-1", Amount: 30},
		projection.Issued{ID: "card-2", Amount: 5},
	)
	r := NewRunner("main", log, cp, projection.New(repo, nil))

	n, err := r.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 3 {
		t.Errorf("processed: got %d, want 3", n)
	}
	if pos, _ := cp.Load(context.Background(), "main"); pos != 3 {
		t.Errorf("checkpoint: got %d, want 3", pos)
	}
	s, _ := repo.Get(context.Background(), "card-1")
	if s.RemainingValue != 70 {
		t.Errorf("card-1 remaining: got %d, want 70", s.RemainingValue)
	}

	n, err = r.ProcessBatch(context.Background())
	if err != nil || n != 0 {
		t.Errorf("second batch: got %d, %v", n, err)
	}
}

func TestProcessBatch_RejectionsAreReportedAndSkipped(t *testing.T) {
	repo := readmodel.NewMemoryStore()
	log := &memLog{}
	cp := &memCheckpoints{}
	log.add(t,
		projection.Redeemed{ID: "unknown", Amount: 1},
		projection.Issued{ID: "card-1", Amount: 10},
		projection.Issued{ID: "card-1", Amount: 10},
	)
	log.addRaw(Record{CardID: "card-1", Type: "GiftCardExpired", Data: []byte(`{}`)})
	log.addRaw(Record{CardID: "card-1", Type: TypeRedeemed, Data: []byte(`not json`)})
	log.add(t, projection.Redeemed{ID: "card-1", Amount: 4})

	var rejected []error
	r := NewRunner("main", log, cp, projection.New(repo, nil),
		WithRejectHandler(func(_ Record, err error) { rejected = append(rejected, err) }))

	n, err := r.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 6 {
		t.Errorf("processed: got %d, want 6", n)
	}
	if len(rejected) != 3 {
		t.Fatalf("rejected: got %v", rejected)
	}
	if !errors.Is(rejected[0], giftcard.ErrNotFound) ||
		!errors.Is(rejected[1], giftcard.ErrDuplicateIssue) ||
		!errors.Is(rejected[2], giftcard.ErrValidation) {
		t.Errorf("rejections: got %v", rejected)
	}

	s, _ := repo.Get(context.Background(), "card-1")
	if s.RemainingValue != 6 || s.InitialValue != 10 {
		t.Errorf("card-1: got %+v", s)
	}
}

func TestProcessBatch_InfrastructureErrorRetries(t *testing.T) {
	repo := readmodel.NewMemoryStore()
	log := &memLog{}
	cp := &memCheckpoints{}
	log.add(t,
		projection.Issued{ID: "card-1", Amount: 10},
		projection.Issued{ID: "card-2", Amount: 20},
		projection.Issued{ID: "card-3", Amount: 30},
	)
	r := NewRunner("main", log, cp, &flakyApplier{next: projection.New(repo, nil), card: "card-2"})

	n, err := r.ProcessBatch(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if giftcard.IsRejection(err) {
		t.Errorf("infrastructure error reported as rejection: %v", err)
	}
	if n != 1 {
		t.Errorf("processed: got %d, want 1", n)
	}
	if pos, _ := cp.Load(context.Background(), "main"); pos != 1 {
		t.Errorf("checkpoint: got %d, want 1", pos)
	}

	n, err = r.ProcessBatch(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("retry: got %d, %v", n, err)
	}
	if c, _ := repo.Count(context.Background(), readmodel.Filter{}); c != 3 {
		t.Errorf("summaries: got %d, want 3", c)
	}
}

func TestProcessBatch_ReadErrorKeepsCheckpoint(t *testing.T) {
	log := &memLog{failAt: 1}
	cp := &memCheckpoints{}
	log.add(t, projection.Issued{ID: "card-1", Amount: 1})
	r := NewRunner("main", log, cp, projection.New(readmodel.NewMemoryStore(), nil))

	if _, err := r.ProcessBatch(context.Background()); err == nil {
		t.Fatal("expected read error")
	}
	if pos, _ := cp.Load(context.Background(), "main"); pos != 0 {
		t.Errorf("checkpoint moved to %d", pos)
	}
}

func TestDrain_ProcessesAllBatches(t *testing.T) {
	repo := readmodel.NewMemoryStore()
	log := &memLog{}
	cp := &memCheckpoints{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		log.add(t, projection.Issued{ID: id, Amount: 1})
	}
	lock := &fakeLock{}
	r := NewRunner("main", log, cp, projection.New(repo, nil), WithBatchSize(2), WithLocker(lock))

	if err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if c, _ := repo.Count(context.Background(), readmodel.Filter{}); c != 5 {
		t.Errorf("summaries: got %d, want 5", c)
	}
	if lock.acquires != 1 || lock.releases != 1 || lock.held {
		t.Errorf("lock: %+v", lock)
	}
}

func TestDrain_SkipsWithoutLock(t *testing.T) {
	repo := readmodel.NewMemoryStore()
	log := &memLog{}
	log.add(t, projection.Issued{ID: "a", Amount: 1})
	lock := &fakeLock{deny: true}
	r := NewRunner("main", log, &memCheckpoints{}, projection.New(repo, nil), WithLocker(lock))

	if err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if c, _ := repo.Count(context.Background(), readmodel.Filter{}); c != 0 {
		t.Errorf("processed %d events without the lock", c)
	}
	if lock.releases != 0 {
		t.Errorf("released a lock it never held")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := readmodel.NewMemoryStore()
	log := &memLog{}
	log.add(t, projection.Issued{ID: "a", Amount: 1})
	r := NewRunner("main", log, &memCheckpoints{}, projection.New(repo, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// first drain runs before the first tick
	for {
		if c, _ := repo.Count(context.Background(), readmodel.Filter{}); c == 1 {
			break
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
}
