package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
)

func TestBatchServiceEndToEnd(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	seeded := h.seed(t, 3)

	a, err := h.svc.NewBatch(ctx, newBatchRequest("A@Example.com ", 2))
	if err != nil {
		t.Fatalf("NewBatch A: %v", err)
	}
	if got := inputIDs(a.Inputs); len(got) != 2 || got[0] != seeded[0].ID || got[1] != seeded[1].ID {
		t.Fatalf("batch A: want=[%d %d] got=%v", seeded[0].ID, seeded[1].ID, got)
	}
	if len(a.Outputs) != 2 || a.Outputs[0].InputID != seeded[0].ID {
		t.Fatalf("batch A outputs: got=%+v", a.Outputs)
	}
	if !strings.Contains(a.Outputs[0].UploadURI, "/outputs/"+UploadKey(seeded[0].ID)) {
		t.Fatalf("upload uri: got=%s", a.Outputs[0].UploadURI)
	}
	if want := "https://store.test/inputs/input1.txt"; a.Inputs[0].StorageURI != want {
		t.Fatalf("storage uri: want=%s got=%s", want, a.Inputs[0].StorageURI)
	}

	b, err := h.svc.NewBatch(ctx, newBatchRequest("b@example.com", 2))
	if err != nil {
		t.Fatalf("NewBatch B: %v", err)
	}
	if got := inputIDs(b.Inputs); len(got) != 1 || got[0] != seeded[2].ID {
		t.Fatalf("batch B: want=[%d] got=%v", seeded[2].ID, got)
	}
	if _, err := h.svc.NewBatch(ctx, newBatchRequest("b@example.com", 2)); !errors.Is(err, ErrNoInputsAvailable) {
		t.Fatalf("exhausted pool: want=%v got=%v", ErrNoInputsAvailable, err)
	}

	first, err := h.svc.UploadOutput(ctx, seeded[0].ID, "a@example.com", strings.NewReader(sampleOutput))
	if err != nil {
		t.Fatalf("UploadOutput: %v", err)
	}
	if got := h.reload(t, seeded[0].ID).Status; got != types.InputStatusProcessed {
		t.Fatalf("status after upload: want=%v got=%v", types.InputStatusProcessed, got)
	}
	events := h.publisher.published()
	if len(events) != 1 {
		t.Fatalf("notifications: want=1 got=%d", len(events))
	}
	ev := events[0]
	if ev.event != ResultEventName || ev.payload.InputID != seeded[0].ID || ev.payload.OutputID != first.OutputID {
		t.Fatalf("notification: got=%+v", ev)
	}
	if ev.payload.BatchID != a.BatchID.String() || ev.payload.DeploymentID != "test-eu" {
		t.Fatalf("notification batch/deployment: got=%s/%s", ev.payload.BatchID, ev.payload.DeploymentID)
	}
	if ev.payload.Email != "a@example.com" || ev.payload.CountryCode != "US" {
		t.Fatalf("notification client: got=%s/%s", ev.payload.Email, ev.payload.CountryCode)
	}
	if ev.payload.TotalScore != 525 {
		t.Fatalf("total score: want=525 got=%d", ev.payload.TotalScore)
	}
	if ev.payload.TPF != "https://store.test/inputs/input1.txt" {
		t.Fatalf("tpf: got=%s", ev.payload.TPF)
	}

	corrected := strings.Replace(sampleOutput, `"sector": 3`, `"sector": 7`, 1)
	second, err := h.svc.UploadOutput(ctx, seeded[0].ID, "a@example.com", strings.NewReader(corrected))
	if err != nil {
		t.Fatalf("UploadOutput corrected: %v", err)
	}
	if second.OutputID != first.OutputID {
		t.Fatalf("output id: want=%d got=%d", first.OutputID, second.OutputID)
	}
	if got := len(h.publisher.published()); got != 1 {
		t.Fatalf("notifications after correction: want=1 got=%d", got)
	}
	res, err := h.results.GetByInputID(dbcFor(ctx), seeded[0].ID)
	if err != nil || res == nil {
		t.Fatalf("GetByInputID: res=%v err=%v", res, err)
	}
	if res.Sector != 7 {
		t.Fatalf("result sector: want=7 got=%d", res.Sector)
	}
	if n, err := h.results.Count(dbcFor(ctx)); err != nil || n != 1 {
		t.Fatalf("result count: want=1 got=%d err=%v", n, err)
	}

	n, err := h.svc.Cancel(ctx, "a@example.com", []int64{seeded[1].ID})
	if err != nil || n != 1 {
		t.Fatalf("Cancel: n=%d err=%v", n, err)
	}
	back := h.reload(t, seeded[1].ID)
	if back.Status != types.InputStatusReady || back.AssignedClientID != nil || back.BatchLabel != nil {
		t.Fatalf("cancelled input: got=%+v", back)
	}

	again, err := h.svc.NewBatch(ctx, newBatchRequest("b@example.com", 2))
	if err != nil {
		t.Fatalf("NewBatch B after cancel: %v", err)
	}
	if got := inputIDs(again.Inputs); len(got) != 1 || got[0] != seeded[1].ID {
		t.Fatalf("re-lease: want=[%d] got=%v", seeded[1].ID, got)
	}
}

func TestNewBatchRejectsInvalidSizeWithoutMutation(t *testing.T) {
	h := newHarness(t, harnessOptions{maxBatchSize: 5})
	ctx := context.Background()
	seeded := h.seed(t, 3)

	for _, size := range []int{0, -1, 6} {
		_, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", size))
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("size %d: want=%v got=%v", size, ErrValidation, err)
		}
	}
	for _, in := range seeded {
		if got := h.reload(t, in.ID); got.Status != types.InputStatusReady || got.AssignedClientID != nil {
			t.Fatalf("input %d mutated: %+v", in.ID, got)
		}
	}
	if c, err := h.clients.GetByEmail(dbcFor(ctx), "a@example.com"); err != nil || c != nil {
		t.Fatalf("client created on invalid request: %v err=%v", c, err)
	}
}

func TestNewBatchValidatesProfile(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	h.seed(t, 1)

	cases := []struct {
		name  string
		tweak func(*NewBatchRequest)
	}{
		{"empty_email", func(r *NewBatchRequest) { r.Email = " " }},
		{"long_email", func(r *NewBatchRequest) { r.Email = strings.Repeat("a", 95) + "@x.com" }},
		{"empty_full_name", func(r *NewBatchRequest) { r.Profile.FullName = "" }},
		{"long_location", func(r *NewBatchRequest) { r.Profile.Location = strings.Repeat("l", 51) }},
		{"long_multibyte_name", func(r *NewBatchRequest) { r.Profile.FullName = strings.Repeat("é", 51) }},
		{"bad_country", func(r *NewBatchRequest) { r.Profile.CountryCode = "XX" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := newBatchRequest("a@example.com", 1)
			tc.tweak(&req)
			if _, err := h.svc.NewBatch(ctx, req); !errors.Is(err, ErrValidation) {
				t.Fatalf("want=%v got=%v", ErrValidation, err)
			}
		})
	}
}

func TestNewBatchCountsCharactersNotBytes(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	h.seed(t, 1)

	req := newBatchRequest(strings.Repeat("ü", 40)+"@example.com", 1)
	req.Profile.FullName = strings.Repeat("é", 30)
	req.Profile.TeamName = strings.Repeat("天", 50)
	req.Profile.Location = "Zürich"
	resp, err := h.svc.NewBatch(ctx, req)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if len(resp.Inputs) != 1 {
		t.Fatalf("inputs: want=1 got=%d", len(resp.Inputs))
	}
}

func TestNewBatchQuota(t *testing.T) {
	h := newHarness(t, harnessOptions{maxPerClient: 3})
	ctx := context.Background()
	h.seed(t, 10)

	first, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 2))
	if err != nil || len(first.Inputs) != 2 {
		t.Fatalf("first batch: err=%v", err)
	}
	second, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 5))
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if len(second.Inputs) != 1 {
		t.Fatalf("clamped batch: want=1 got=%d", len(second.Inputs))
	}
	if _, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 1)); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("over quota: want=%v got=%v", ErrQuotaExceeded, err)
	}
	// Another client is unaffected.
	other, err := h.svc.NewBatch(ctx, newBatchRequest("b@example.com", 3))
	if err != nil || len(other.Inputs) != 3 {
		t.Fatalf("other client: err=%v", err)
	}
}

func TestNewBatchHonoursMinInputID(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	seeded := h.seed(t, 4)
	h.buildService(t, harnessOptions{minInputID: seeded[1].ID})

	got, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 10))
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if ids := inputIDs(got.Inputs); len(ids) != 2 || ids[0] != seeded[2].ID || ids[1] != seeded[3].ID {
		t.Fatalf("min id floor: got=%v", ids)
	}
}

func TestNewBatchReleasesLeaseWhenURIIssuanceFails(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	seeded := h.seed(t, 2)
	h.store.signErr = errors.New("signer offline")

	if _, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 2)); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("want=%v got=%v", ErrStorageUnavailable, err)
	}
	for _, in := range seeded {
		if got := h.reload(t, in.ID); got.Status != types.InputStatusReady {
			t.Fatalf("input %d not released: %v", in.ID, got.Status)
		}
	}
}

func TestUploadOutputOwnership(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	seeded := h.seed(t, 2)

	if _, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 1)); err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if _, err := h.svc.NewBatch(ctx, newBatchRequest("b@example.com", 1)); err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	cases := []struct {
		name    string
		inputID int64
		email   string
		body    string
		want    error
	}{
		{"unknown_input", 999, "a@example.com", sampleOutput, ErrInputNotFound},
		{"unknown_client", seeded[0].ID, "nobody@example.com", sampleOutput, ErrClientNotFound},
		{"not_owner", seeded[1].ID, "a@example.com", sampleOutput, ErrOwnershipMismatch},
		{"malformed", seeded[0].ID, "a@example.com", `{"lc":`, ErrMalformedOutput},
		{"missing_lc", seeded[0].ID, "a@example.com", `{"sector": 1}`, ErrMalformedOutput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.UploadOutput(ctx, tc.inputID, tc.email, strings.NewReader(tc.body))
			if !errors.Is(err, tc.want) {
				t.Fatalf("want=%v got=%v", tc.want, err)
			}
		})
	}
	if got := h.reload(t, seeded[1].ID).Status; got != types.InputStatusAssigned {
		t.Fatalf("foreign input status: want=%v got=%v", types.InputStatusAssigned, got)
	}
	if n, _ := h.results.Count(dbcFor(ctx)); n != 0 {
		t.Fatalf("results: want=0 got=%d", n)
	}
	if got := len(h.publisher.published()); got != 0 {
		t.Fatalf("notifications: want=0 got=%d", got)
	}
}

func TestUploadOutputArchivesBody(t *testing.T) {
	h := newHarness(t, harnessOptions{archive: true})
	ctx := context.Background()
	seeded := h.seed(t, 1)
	if _, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 1)); err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if _, err := h.svc.UploadOutput(ctx, seeded[0].ID, "a@example.com", strings.NewReader(sampleOutput)); err != nil {
		t.Fatalf("UploadOutput: %v", err)
	}
	got, ok := h.store.uploads["outputs/"+ArchiveKey(seeded[0].ID)]
	if !ok || string(got) != sampleOutput {
		t.Fatalf("archived body: ok=%v got=%q", ok, got)
	}
}

func TestUploadOutputArchiveFailureIsNotSurfaced(t *testing.T) {
	h := newHarness(t, harnessOptions{archive: true})
	ctx := context.Background()
	seeded := h.seed(t, 1)
	h.store.uploadErr = errors.New("bucket gone")
	if _, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 1)); err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if _, err := h.svc.UploadOutput(ctx, seeded[0].ID, "a@example.com", strings.NewReader(sampleOutput)); err != nil {
		t.Fatalf("UploadOutput: %v", err)
	}
}

func TestCancelValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	if _, err := h.svc.Cancel(ctx, "", []int64{1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty email: want=%v got=%v", ErrValidation, err)
	}
	if _, err := h.svc.Cancel(ctx, "a@example.com", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("no ids: want=%v got=%v", ErrValidation, err)
	}
	if _, err := h.svc.Cancel(ctx, "a@example.com", []int64{1}); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("unknown client: want=%v got=%v", ErrClientNotFound, err)
	}
}
