package etl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// fakeStore records loader calls and simulates the persistence layer
// well enough to drive the pipeline.
type fakeStore struct {
	processed map[string]bool
	loaded    map[string]bool // business ids across runs

	loadCalls     int
	failures      []FileFailure
	staleCalls    int
	staleReturn   int64
	loadErr       error
	reconcileErr  error
	lastBatch     *Batch
	lastItemBatch *ItemBatch
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		processed: make(map[string]bool),
		loaded:    make(map[string]bool),
	}
}

func (f *fakeStore) IsFileProcessed(ctx context.Context, fingerprint string) (bool, error) {
	return f.processed[fingerprint], nil
}

func (f *fakeStore) Load(ctx context.Context, b *Batch) (LoadResult, error) {
	f.loadCalls++
	f.lastBatch = b
	if f.loadErr != nil {
		return LoadResult{}, f.loadErr
	}

	inserted := 0
	duplicates := b.Duplicates
	for _, row := range b.Rows {
		if f.loaded[row.TransactionID] {
			duplicates++
			continue
		}
		f.loaded[row.TransactionID] = true
		inserted++
	}
	f.processed[b.Fingerprint] = true

	status := RunSuccess
	if len(b.Rejected) > 0 {
		if inserted > 0 {
			status = RunPartial
		} else {
			status = RunError
		}
	}
	return LoadResult{LogID: 1, Inserted: inserted, Duplicates: duplicates, Status: status}, nil
}

func (f *fakeStore) LoadItems(ctx context.Context, b *ItemBatch) (ItemLoadResult, error) {
	f.lastItemBatch = b
	f.processed[b.Fingerprint] = true
	return ItemLoadResult{LogID: 2, Inserted: len(b.Items), Status: RunSuccess}, nil
}

func (f *fakeStore) RecordFailure(ctx context.Context, fail FileFailure) error {
	f.failures = append(f.failures, fail)
	return nil
}

func (f *fakeStore) ReconcileStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.staleCalls++
	if f.reconcileErr != nil {
		return 0, f.reconcileErr
	}
	return f.staleReturn, nil
}

func testPipeline(st Store) *Pipeline {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ex := NewExtractor(st, 0)
	tr := &Transformer{Now: func() time.Time { return testNow }}
	return NewPipeline(ex, tr, st, log, time.Hour)
}

func TestPipeline_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vendas.csv", sampleCSV)
	st := newFakeStore()

	sum, err := testPipeline(st).Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed() {
		t.Fatalf("run failed: %+v", sum.Reports)
	}
	if st.staleCalls != 1 {
		t.Errorf("stale reconciliation calls = %d, want 1", st.staleCalls)
	}

	_, inserted, _, _, _ := sum.Totals()
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}
	if st.lastBatch == nil || st.lastBatch.FileName != "vendas.csv" {
		t.Errorf("batch = %+v", st.lastBatch)
	}
}

func TestPipeline_RerunSkipsIdenticalFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vendas.csv", sampleCSV)
	st := newFakeStore()
	p := testPipeline(st)

	if _, err := p.Run(context.Background(), []string{path}); err != nil {
		t.Fatal(err)
	}
	sum, err := p.Run(context.Background(), []string{path})
	if err != nil {
		t.Fatal(err)
	}

	if st.loadCalls != 1 {
		t.Errorf("load calls = %d, want 1 (second run skipped)", st.loadCalls)
	}
	_, _, _, _, skipped := sum.Totals()
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if sum.Failed() {
		t.Error("skip must not count as failure")
	}

	// Same bytes under a new name: still skipped.
	renamed := writeFile(t, dir, "vendas_v2.csv", sampleCSV)
	if _, err := p.Run(context.Background(), []string{renamed}); err != nil {
		t.Fatal(err)
	}
	if st.loadCalls != 1 {
		t.Errorf("renamed identical file reached the loader")
	}
}

func TestPipeline_BadFileDoesNotStopRun(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "a_broken.csv", "id_transacao,cliente\nTX001,Maria\n")
	good := writeFile(t, dir, "b_vendas.csv", sampleCSV)
	st := newFakeStore()

	sum, err := testPipeline(st).Run(context.Background(), []string{bad, good})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !sum.Failed() {
		t.Error("run with a broken file must report failure")
	}
	if len(sum.Reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(sum.Reports))
	}
	if sum.Reports[0].Err == nil {
		t.Error("broken file should carry an error")
	}
	if sum.Reports[1].Err != nil || sum.Reports[1].Inserted != 2 {
		t.Errorf("good file should still load: %+v", sum.Reports[1])
	}
	if len(st.failures) != 1 {
		t.Errorf("recorded failures = %d, want 1", len(st.failures))
	}
}

func TestPipeline_LoadFaultRecordsFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vendas.csv", sampleCSV)
	st := newFakeStore()
	st.loadErr = &LoadError{Op: "commit", Err: errors.New("connection lost")}

	sum, err := testPipeline(st).Run(context.Background(), []string{path})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Failed() {
		t.Error("load fault must fail the run")
	}
	if len(st.failures) != 1 {
		t.Fatalf("recorded failures = %d, want 1", len(st.failures))
	}
	if st.failures[0].FileName != "vendas.csv" {
		t.Errorf("failure file = %q", st.failures[0].FileName)
	}
	if st.failures[0].Fingerprint == "" {
		t.Error("failure should carry the fingerprint")
	}
}

func TestPipeline_ReconcileFaultAbortsRun(t *testing.T) {
	st := newFakeStore()
	st.reconcileErr = errors.New("db down")

	_, err := testPipeline(st).Run(context.Background(), nil)
	if err == nil {
		t.Fatal("want error when stale-run reconciliation fails")
	}
	if st.loadCalls != 0 {
		t.Error("no file should load after an aborted start")
	}
}

func TestPipeline_StaleRunCount(t *testing.T) {
	st := newFakeStore()
	st.staleReturn = 3

	sum, err := testPipeline(st).Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.StaleRunsClosed != 3 {
		t.Errorf("StaleRunsClosed = %d, want 3", sum.StaleRunsClosed)
	}
}

func TestPipeline_RunDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", sampleCSV)
	writeFile(t, dir, "notes.txt", "ignored")
	st := newFakeStore()

	sum, err := testPipeline(st).RunDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(sum.Reports))
	}
	if !strings.HasSuffix(sum.Reports[0].File, "b.csv") {
		t.Errorf("file = %q", sum.Reports[0].File)
	}
}

func TestPipeline_RunItems(t *testing.T) {
	csv := "id_transacao;produto;quantidade;valor_unitario\n" +
		"TX001;Notebook;2;1500,00\n" +
		"TX001;Mouse;1;80,00\n"
	dir := t.TempDir()
	path := writeFile(t, dir, "itens.csv", csv)
	st := newFakeStore()

	sum, err := testPipeline(st).RunItems(context.Background(), []string{path})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed() {
		t.Fatalf("item run failed: %+v", sum.Reports)
	}
	if st.lastItemBatch == nil || len(st.lastItemBatch.Items) != 2 {
		t.Fatalf("item batch = %+v", st.lastItemBatch)
	}

	// Every transformed line total satisfies the invariant.
	for _, it := range st.lastItemBatch.Items {
		if !it.Total.Equal(it.UnitPrice.Mul(intDecimal(it.Quantity))) {
			t.Errorf("item %s/%s: total %s != %d * %s",
				it.TransactionID, it.Product, it.Total, it.Quantity, it.UnitPrice)
		}
	}
}

func TestSummaryFailed(t *testing.T) {
	ok := &Summary{Reports: []FileReport{{Status: RunSuccess}, {Skipped: true}}}
	if ok.Failed() {
		t.Error("clean summary reported failure")
	}

	bad := &Summary{Reports: []FileReport{{Status: RunSuccess}, {Status: RunError}}}
	if !bad.Failed() {
		t.Error("summary with ERRO file reported success")
	}
}
