package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/encoder"
	"github.com/shaiso/Recital/internal/engine"
	"github.com/shaiso/Recital/internal/orchestrator"
)

// Фейковый piper из TestMain пакета engine падает на текстах с "crash".
func TestPiperPoolIsolatesCrashedItem(t *testing.T) {
	t.Setenv("RECITAL_FAKE_PIPER", "1")

	self, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	model := filepath.Join(dir, "en_US-amy-medium.onnx")
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0o644))

	factory, err := engine.NewFactory(engine.DefaultRegistry(), engine.Config{
		Variant:  engine.VariantPiper,
		ModelRef: model,
		Params:   map[string]any{"binary": self},
	})
	require.NoError(t, err)

	orch, err := orchestrator.New(orchestrator.Config{
		Strategy:  orchestrator.PerProcessPool(1),
		Engine:    factory,
		Encoder:   encoder.NewWAV(),
		OutputDir: filepath.Join(dir, "out"),
		WorkDir:   dir,
	})
	require.NoError(t, err)

	items := []domain.WorkItem{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "crash beta"},
		{ID: "c", Text: "gamma"},
		{ID: "d", Text: "delta"},
	}
	results, err := orch.Run(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, len(items))

	assert.Equal(t, domain.Summary{Total: 4, Succeeded: 3, Failed: 1}, domain.Summarize(results))
	for _, res := range results {
		if res.ID == "b" {
			assert.False(t, res.IsSuccess())
			assert.Equal(t, domain.StageSynthesize, res.Stage)
			continue
		}
		assert.True(t, res.IsSuccess(), "%s: %s", res.ID, res.Reason)
		assert.FileExists(t, filepath.Join(dir, "out", res.ID+".wav"))
	}
}
