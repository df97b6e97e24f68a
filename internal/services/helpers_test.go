package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/data/repos"
	"github.com/yungbote/sciencelab-batchserver/internal/data/repos/testutil"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	signed    []string
	uploads   map[string][]byte
	signErr   error
	uploadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: map[string][]byte{}}
}

func (f *fakeStore) ObjectURL(bucket, key string) string {
	return "https://store.test/" + bucket + "/" + key
}

func (f *fakeStore) SignedPutURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := fmt.Sprintf("https://store.test/%s/%s?ttl=%s&n=%d", bucket, key, ttl, len(f.signed))
	f.signed = append(f.signed, u)
	return u, nil
}

func (f *fakeStore) Upload(_ context.Context, bucket, key string, r io.Reader) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[bucket+"/"+key] = b
	return nil
}

type publishedEvent struct {
	event   string
	payload ResultNotification
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, event string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return "", errors.New("stream unavailable")
	}
	n, _ := payload.(ResultNotification)
	p.events = append(p.events, publishedEvent{event: event, payload: n})
	return fmt.Sprintf("%d-0", len(p.events)), nil
}

func (p *fakePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type harness struct {
	db        *gorm.DB
	clock     *clockwork.FakeClock
	store     *fakeStore
	publisher *fakePublisher
	inputs    repos.InputRepo
	clients   repos.ClientRepo
	results   repos.ResultRepo
	identity  IdentityDirectory
	canceller CancellationHandler
	svc       BatchService
}

type harnessOptions struct {
	maxBatchSize int
	maxPerClient int
	minInputID   int64
	archive      bool
	noPublisher  bool
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	clock := clockwork.NewFakeClockAt(testNow)

	h := &harness{
		db:        db,
		clock:     clock,
		store:     newFakeStore(),
		publisher: &fakePublisher{},
		inputs:    repos.NewInputRepo(db, log),
		clients:   repos.NewClientRepo(db, log),
		results:   repos.NewResultRepo(db, log),
	}
	h.buildService(t, opts)
	return h
}

// buildService wires the services over h's store so options can change between phases of a test.
func (h *harness) buildService(t *testing.T, opts harnessOptions) {
	t.Helper()
	log := testutil.Logger(t)
	if opts.maxBatchSize == 0 {
		opts.maxBatchSize = 100
	}
	var publisher EventPublisher = h.publisher
	if opts.noPublisher {
		publisher = nil
	}

	uris := NewURIResolver(log, h.store, URIResolverConfig{InputsBucket: "inputs", OutputsBucket: "outputs"})
	notifier := NewNotificationDispatcher(log, publisher, uris, nil, NotificationConfig{DeploymentID: "test-eu"})
	notifier.(*notificationDispatcher).newBackoff = zeroBackoff
	h.identity = NewIdentityDirectory(h.db, log, h.clock, h.clients)
	h.canceller = NewCancellationHandler(h.db, log, h.clock, h.inputs)
	h.svc = NewBatchService(
		log,
		h.identity,
		NewQuotaGuard(log, h.inputs, opts.maxPerClient),
		NewLeaseManager(log, h.clock, h.inputs),
		uris,
		NewResultIngester(h.db, log, h.clock, h.inputs, h.clients, h.results),
		notifier,
		h.canceller,
		h.store,
		nil,
		BatchConfig{
			MaxBatchSize:   opts.maxBatchSize,
			MinInputID:     opts.minInputID,
			ArchiveOutputs: opts.archive,
			OutputsBucket:  "outputs",
			TempDir:        t.TempDir(),
		},
	)
}

func zeroBackoff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
}

func (h *harness) seed(t *testing.T, n int) []*types.Input {
	t.Helper()
	return testutil.SeedInputs(t, context.Background(), h.db, n)
}

func dbcFor(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}

func (h *harness) reload(t *testing.T, id int64) *types.Input {
	t.Helper()
	return testutil.ReloadInput(t, context.Background(), h.db, id)
}

func newBatchRequest(email string, size int) NewBatchRequest {
	return NewBatchRequest{
		BatchSize: size,
		Email:     email,
		Profile: types.Profile{
			FullName:    "Grace Hopper",
			TeamName:    "Compilers",
			CompanyName: "Navy",
			Location:    "Arlington",
			CountryCode: "us",
		},
	}
}

func inputIDs(inputs []*types.Input) []int64 {
	out := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, in.ID)
	}
	return out
}

const sampleOutput = `{
	"containerid": "c-1",
	"clientversion": "GABClient/1.2.0",
	"ticid": "TIC 1",
	"sector": 3,
	"camera": 1,
	"ccd": 4,
	"ra": 10.5,
	"dec": -20.25,
	"tmag": 9.75,
	"lc": "1_data.npz",
	"isplanet": 0.5,
	"isnotplanet": 0.25,
	"frequencies": [0.5, 1.25]
}`
