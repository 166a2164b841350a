package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Recital/internal/audio"
	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/encoder"
	"github.com/shaiso/Recital/internal/engine"
)

// --- fakes ---

var errSynth = errors.New("synthesis failed")

// fakeEngine считает Init, одновременные синтезы и размеры батчей.
type fakeEngine struct {
	failInit  bool
	failText  string
	panicText string
	delay     time.Duration
	batch     bool
	batchErr  func(texts []string) error
	batchTrim bool

	inits    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	started  chan string

	mu      sync.Mutex
	batches []int
}

func (e *fakeEngine) factory() engine.FactoryFunc {
	return func(ctx context.Context) (engine.Handle, error) {
		e.inits.Add(1)
		if e.failInit {
			return nil, errors.New("model not found")
		}
		h := &fakeHandle{e: e}
		if e.batch {
			return &fakeBatchHandle{fakeHandle: h}, nil
		}
		return h, nil
	}
}

func (e *fakeEngine) batchSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.batches...)
}

type fakeHandle struct {
	e *fakeEngine
}

func (h *fakeHandle) Synthesize(ctx context.Context, text string) (audio.Audio, error) {
	n := h.e.inFlight.Add(1)
	defer h.e.inFlight.Add(-1)
	for {
		m := h.e.maxSeen.Load()
		if n <= m || h.e.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if h.e.started != nil {
		h.e.started <- text
	}

	if h.e.delay > 0 {
		select {
		case <-time.After(h.e.delay):
		case <-ctx.Done():
			return audio.Audio{}, ctx.Err()
		}
	}
	if text == h.e.panicText {
		panic("backend exploded")
	}
	if text == h.e.failText {
		return audio.Audio{}, fmt.Errorf("%w: %s", errSynth, text)
	}
	return audio.Audio{Samples: make([]int16, 100), SampleRate: 8000, Channels: 1}, nil
}

func (h *fakeHandle) Close() error { return nil }

type fakeBatchHandle struct {
	*fakeHandle
}

func (h *fakeBatchHandle) SynthesizeBatch(ctx context.Context, texts []string) ([]engine.BatchResult, error) {
	h.e.mu.Lock()
	h.e.batches = append(h.e.batches, len(texts))
	h.e.mu.Unlock()

	if h.e.batchErr != nil {
		if err := h.e.batchErr(texts); err != nil {
			return nil, err
		}
	}
	out := make([]engine.BatchResult, len(texts))
	for i, t := range texts {
		a, err := h.Synthesize(ctx, t)
		out[i] = engine.BatchResult{Audio: a, Err: err}
	}
	if h.e.batchTrim {
		out = out[:len(out)-1]
	}
	return out, nil
}

// fakeEncoder переносит WAV как есть и падает на failID.
type fakeEncoder struct {
	failID string
	calls  atomic.Int32
}

func (e *fakeEncoder) Kind() string      { return "fake" }
func (e *fakeEncoder) Extension() string { return "wav" }

func (e *fakeEncoder) Encode(ctx context.Context, in, target string) error {
	e.calls.Add(1)
	if e.failID != "" && filepath.Base(target) == e.failID+".wav" {
		os.Remove(in)
		return errors.New("ffmpeg exited with status 1")
	}
	return encoder.NewWAV().Encode(ctx, in, target)
}

// countingObserver считает события.
type countingObserver struct {
	NopObserver
	mu      sync.Mutex
	started int
	done    map[string]int
	batches []int
	runDone int
}

func (o *countingObserver) OnItemStart(string) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *countingObserver) OnItemDone(res domain.ProcessingResult) {
	o.mu.Lock()
	if o.done == nil {
		o.done = make(map[string]int)
	}
	o.done[res.ID]++
	o.mu.Unlock()
}

func (o *countingObserver) OnBatch(size int, _ time.Duration, _ error) {
	o.mu.Lock()
	o.batches = append(o.batches, size)
	o.mu.Unlock()
}

func (o *countingObserver) OnRunDone(domain.Summary, time.Duration) {
	o.mu.Lock()
	o.runDone++
	o.mu.Unlock()
}

// --- helpers ---

type env struct {
	out  string
	work string
}

func newEnv(t *testing.T) env {
	t.Helper()
	return env{out: filepath.Join(t.TempDir(), "snd"), work: t.TempDir()}
}

func (e env) orchestrator(t *testing.T, s Strategy, f EngineFactory, enc encoder.Encoder, obs Observer) *Orchestrator {
	t.Helper()
	if enc == nil {
		enc = encoder.NewWAV()
	}
	o, err := New(Config{
		Strategy:  s,
		Engine:    f,
		Encoder:   enc,
		OutputDir: e.out,
		WorkDir:   e.work,
		Observer:  obs,
	})
	require.NoError(t, err)
	return o
}

// assertNoIntermediates проверяет, что после run во work dir ничего нет.
func (e env) assertNoIntermediates(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.work)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dir must be empty after run")
}

func abc() []domain.WorkItem {
	return []domain.WorkItem{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "beta"},
		{ID: "c", Text: "gamma"},
	}
}

func manyItems(n int) []domain.WorkItem {
	items := make([]domain.WorkItem, n)
	for i := range items {
		items[i] = domain.WorkItem{ID: fmt.Sprintf("w%03d", i), Text: fmt.Sprintf("word %d", i)}
	}
	return items
}

func outcomes(results []domain.ProcessingResult) map[string]domain.Outcome {
	m := make(map[string]domain.Outcome, len(results))
	for _, r := range results {
		m[r.ID] = r.Outcome
	}
	return m
}

// --- configuration ---

func TestNewConfigurationErrors(t *testing.T) {
	f := (&fakeEngine{}).factory()
	enc := encoder.NewWAV()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero concurrency", Config{Strategy: PerProcessPool(0), Engine: f, Encoder: enc, OutputDir: "out"}},
		{"negative batch size", Config{Strategy: MicroBatch(-2), Engine: f, Encoder: enc, OutputDir: "out"}},
		{"unknown strategy", Config{Strategy: Strategy{Kind: "threads", Concurrency: 2}, Engine: f, Encoder: enc, OutputDir: "out"}},
		{"no engine", Config{Strategy: PerProcessPool(1), Encoder: enc, OutputDir: "out"}},
		{"no encoder", Config{Strategy: PerProcessPool(1), Engine: f, OutputDir: "out"}},
		{"no output dir", Config{Strategy: PerProcessPool(1), Engine: f, Encoder: enc}},
		{"negative encode parallelism", Config{Strategy: MicroBatch(2), Engine: f, Encoder: enc, OutputDir: "out", EncodeParallelism: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)

			var cerr *ConfigurationError
			assert.ErrorAs(t, err, &cerr)
		})
	}
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "pool(4)", PerProcessPool(4).String())
	assert.Equal(t, "microbatch(16)", MicroBatch(16).String())
	assert.Positive(t, DefaultPool().Concurrency)
}

func TestRunEmptyInput(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{}
	o := e.orchestrator(t, PerProcessPool(2), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, fe.inits.Load(), "engine must not be initialized for empty input")
}

func TestRunInvalidItems(t *testing.T) {
	e := newEnv(t)
	o := e.orchestrator(t, PerProcessPool(2), (&fakeEngine{}).factory(), nil, nil)

	_, err := o.Run(context.Background(), []domain.WorkItem{{ID: "a", Text: "x"}, {ID: "a", Text: "y"}})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrDuplicateID)

	_, err = o.Run(context.Background(), []domain.WorkItem{{ID: "../etc/passwd", Text: "x"}})
	assert.ErrorIs(t, err, domain.ErrUnsafeID)
}

// --- pool ---

func TestPoolAllSucceed(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{}
	o := e.orchestrator(t, PerProcessPool(2), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), abc())
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, results[i].ID)
		assert.True(t, results[i].IsSuccess(), "item %s", id)
		assert.Equal(t, filepath.Join(e.out, id+".wav"), results[i].ArtifactPath)
		assert.FileExists(t, results[i].ArtifactPath)

		a, err := audio.ReadWAVFile(results[i].ArtifactPath)
		require.NoError(t, err)
		assert.Equal(t, 100, a.Frames())
	}

	assert.Equal(t, int32(2), fe.inits.Load())
	e.assertNoIntermediates(t)
}

func TestPoolIsolatesSynthesisFailure(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{failText: "beta"}
	o := e.orchestrator(t, PerProcessPool(2), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), abc())
	require.NoError(t, err)

	assert.Equal(t, map[string]domain.Outcome{
		"a": domain.OutcomeSuccess,
		"b": domain.OutcomeFailure,
		"c": domain.OutcomeSuccess,
	}, outcomes(results))

	b := results[1]
	assert.Equal(t, domain.StageSynthesize, b.Stage)
	assert.ErrorIs(t, b.Err, ErrItemProcessing)
	assert.ErrorIs(t, b.Err, errSynth)
	assert.Contains(t, b.Reason, "beta")

	var ierr *ItemProcessingError
	require.ErrorAs(t, b.Err, &ierr)
	assert.Equal(t, "b", ierr.ID)

	assert.NoFileExists(t, filepath.Join(e.out, "b.wav"))
	e.assertNoIntermediates(t)
}

func TestPoolEncodeFailure(t *testing.T) {
	e := newEnv(t)
	enc := &fakeEncoder{failID: "c"}
	o := e.orchestrator(t, PerProcessPool(3), (&fakeEngine{}).factory(), enc, nil)

	results, err := o.Run(context.Background(), abc())
	require.NoError(t, err)

	assert.True(t, results[0].IsSuccess())
	assert.True(t, results[1].IsSuccess())
	assert.False(t, results[2].IsSuccess())
	assert.Equal(t, domain.StageEncode, results[2].Stage)
	assert.Equal(t, int32(3), enc.calls.Load())

	assert.NoFileExists(t, filepath.Join(e.out, "c.wav"))
	e.assertNoIntermediates(t)
}

func TestPoolRecoversPanic(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{panicText: "alpha"}
	o := e.orchestrator(t, PerProcessPool(1), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), abc())
	require.NoError(t, err)

	assert.Equal(t, domain.StagePanic, results[0].Stage)
	assert.Contains(t, results[0].Reason, "backend exploded")
	assert.True(t, results[1].IsSuccess(), "worker keeps running after a panic")
	assert.True(t, results[2].IsSuccess())
}

func TestPoolConcurrencyBound(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{delay: 5 * time.Millisecond}
	o := e.orchestrator(t, PerProcessPool(3), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), manyItems(30))
	require.NoError(t, err)
	require.Len(t, results, 30)

	assert.LessOrEqual(t, fe.maxSeen.Load(), int32(3))
	assert.Equal(t, int32(3), fe.inits.Load(), "one Init per worker")

	seen := make(map[string]bool)
	for _, r := range results {
		assert.True(t, r.IsSuccess())
		assert.False(t, seen[r.ID], "duplicate result for %s", r.ID)
		seen[r.ID] = true
	}
	e.assertNoIntermediates(t)
}

func TestPoolWorkersCappedByItems(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{}
	o := e.orchestrator(t, PerProcessPool(8), fe.factory(), nil, nil)

	_, err := o.Run(context.Background(), abc()[:2])
	require.NoError(t, err)
	assert.Equal(t, int32(2), fe.inits.Load())
}

func TestPoolEngineInitFailure(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{failInit: true}
	o := e.orchestrator(t, PerProcessPool(2), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), abc())
	assert.Nil(t, results, "no partial result set on fatal error")
	assert.ErrorIs(t, err, ErrEngineInit)

	var ierr *EngineInitError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, ierr.Error(), "model not found")

	entries, _ := os.ReadDir(e.out)
	assert.Empty(t, entries, "no item is processed when Init fails")
	e.assertNoIntermediates(t)
}

func TestPoolInitPanic(t *testing.T) {
	e := newEnv(t)
	f := engine.FactoryFunc(func(ctx context.Context) (engine.Handle, error) {
		panic("cuda not available")
	})
	o := e.orchestrator(t, PerProcessPool(1), f, nil, nil)

	_, err := o.Run(context.Background(), abc())
	assert.ErrorIs(t, err, ErrEngineInit)
}

func TestPoolCancellation(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{delay: time.Hour, started: make(chan string, 10)}
	obs := &countingObserver{}
	o := e.orchestrator(t, PerProcessPool(1), fe.factory(), nil, obs)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-fe.started
		cancel()
	}()

	items := manyItems(5)
	results, err := o.Run(ctx, items)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, len(items), "results stay complete on cancellation")

	for i, r := range results {
		assert.Equal(t, items[i].ID, r.ID)
		assert.False(t, r.IsSuccess())
		assert.Equal(t, domain.StageCancelled, r.Stage)
	}
	assert.Len(t, obs.done, len(items))
	e.assertNoIntermediates(t)
}

func TestPoolInitFailureDuringCancelKeepsCause(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	modelErr := errors.New("model not found: en_US-amy")
	f := engine.FactoryFunc(func(context.Context) (engine.Handle, error) {
		cancel()
		return nil, modelErr
	})
	o := e.orchestrator(t, PerProcessPool(1), f, nil, nil)

	results, err := o.Run(ctx, abc())
	assert.Nil(t, results)
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrEngineInit)
	assert.ErrorIs(t, err, modelErr)
	assert.Contains(t, err.Error(), "model not found")
}

// --- microbatch ---

func TestMicroBatchSizes(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{3, 2, []int{2, 1}},
		{7, 3, []int{3, 3, 1}},
		{4, 4, []int{4}},
		{2, 10, []int{2}},
		{5, 1, []int{1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/B=%d", tt.n, tt.size), func(t *testing.T) {
			e := newEnv(t)
			fe := &fakeEngine{batch: true}
			obs := &countingObserver{}
			o := e.orchestrator(t, MicroBatch(tt.size), fe.factory(), nil, obs)

			results, err := o.Run(context.Background(), manyItems(tt.n))
			require.NoError(t, err)
			require.Len(t, results, tt.n)

			assert.Equal(t, tt.want, fe.batchSizes())
			assert.Equal(t, tt.want, obs.batches)
			assert.Equal(t, int32(1), fe.inits.Load(), "one Init per run")
			assert.Equal(t, 1, obs.runDone)
			e.assertNoIntermediates(t)
		})
	}
}

func TestMicroBatchPerItemErrors(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{batch: true, failText: "beta"}
	o := e.orchestrator(t, MicroBatch(2), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), abc())
	require.NoError(t, err)

	assert.Equal(t, map[string]domain.Outcome{
		"a": domain.OutcomeSuccess,
		"b": domain.OutcomeFailure,
		"c": domain.OutcomeSuccess,
	}, outcomes(results))
	assert.ErrorIs(t, results[1].Err, errSynth)
	assert.NotErrorIs(t, results[1].Err, ErrBatchProcessing)
	e.assertNoIntermediates(t)
}

func TestMicroBatchWholeBatchFailure(t *testing.T) {
	e := newEnv(t)
	oom := errors.New("CUDA out of memory")
	fe := &fakeEngine{
		batch: true,
		batchErr: func(texts []string) error {
			for _, text := range texts {
				if text == "beta" {
					return oom
				}
			}
			return nil
		},
	}
	o := e.orchestrator(t, MicroBatch(2), fe.factory(), nil, nil)

	items := append(abc(), domain.WorkItem{ID: "d", Text: "delta"})
	results, err := o.Run(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 4)

	// батч [a b] упал целиком, [c d] прошёл
	for _, r := range results[:2] {
		assert.False(t, r.IsSuccess())
		assert.Equal(t, domain.StageSynthesize, r.Stage)
		assert.ErrorIs(t, r.Err, ErrBatchProcessing)
		assert.ErrorIs(t, r.Err, oom)

		var berr *BatchProcessingError
		require.ErrorAs(t, r.Err, &berr)
		assert.Equal(t, []string{"a", "b"}, berr.IDs)
	}
	assert.True(t, results[2].IsSuccess())
	assert.True(t, results[3].IsSuccess())
	e.assertNoIntermediates(t)
}

func TestMicroBatchResultCountMismatch(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{batch: true, batchTrim: true}
	o := e.orchestrator(t, MicroBatch(3), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), abc())
	require.NoError(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, ErrBatchSize)
		assert.ErrorIs(t, r.Err, ErrBatchProcessing)
	}
}

func TestMicroBatchOverSingleItemEngine(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{failText: "gamma"}
	o := e.orchestrator(t, MicroBatch(2), fe.factory(), nil, nil)

	results, err := o.Run(context.Background(), abc())
	require.NoError(t, err)
	assert.True(t, results[0].IsSuccess())
	assert.True(t, results[1].IsSuccess())
	assert.Equal(t, domain.StageSynthesize, results[2].Stage)
}

func TestMicroBatchEncodeFailure(t *testing.T) {
	e := newEnv(t)
	o := e.orchestrator(t, MicroBatch(3), (&fakeEngine{batch: true}).factory(), &fakeEncoder{failID: "a"}, nil)

	results, err := o.Run(context.Background(), abc())
	require.NoError(t, err)
	assert.Equal(t, domain.StageEncode, results[0].Stage)
	assert.True(t, results[1].IsSuccess())
	assert.True(t, results[2].IsSuccess())
	e.assertNoIntermediates(t)
}

func TestMicroBatchEngineInitFailure(t *testing.T) {
	e := newEnv(t)
	o := e.orchestrator(t, MicroBatch(2), (&fakeEngine{failInit: true}).factory(), nil, nil)

	results, err := o.Run(context.Background(), abc())
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrEngineInit)
}

func TestMicroBatchCancelledBeforeStart(t *testing.T) {
	e := newEnv(t)
	fe := &fakeEngine{batch: true}
	o := e.orchestrator(t, MicroBatch(2), fe.factory(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := o.Run(ctx, abc())
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, domain.StageCancelled, r.Stage)
	}
	assert.Empty(t, fe.batchSizes(), "no batch is dispatched after cancellation")
}

// --- observer / errors ---

func TestObserverSeesEveryItemOnce(t *testing.T) {
	e := newEnv(t)
	obs := &countingObserver{}
	o := e.orchestrator(t, PerProcessPool(4), (&fakeEngine{failText: "word 3"}).factory(), nil, obs)

	items := manyItems(12)
	_, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 12, obs.started)
	require.Len(t, obs.done, 12)
	for _, it := range items {
		assert.Equal(t, 1, obs.done[it.ID])
	}
}

func TestObserversFanOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	obs := Observers{a, b}

	obs.OnItemStart("x")
	obs.OnItemDone(domain.Succeeded("x", "x.mp3"))
	obs.OnBatch(2, time.Second, nil)
	obs.OnRunDone(domain.Summary{}, time.Second)

	for _, o := range []*countingObserver{a, b} {
		assert.Equal(t, 1, o.started)
		assert.Equal(t, 1, o.done["x"])
		assert.Equal(t, []int{2}, o.batches)
		assert.Equal(t, 1, o.runDone)
	}
}

func TestBatchProcessingErrorMessage(t *testing.T) {
	err := &BatchProcessingError{IDs: []string{"a", "b", "c"}, Err: errors.New("timeout")}
	assert.Equal(t, "batch [a..c] (3 items): timeout", err.Error())

	err = &BatchProcessingError{IDs: []string{"a"}, Err: errors.New("timeout")}
	assert.Equal(t, "batch [a]: timeout", err.Error())
}
