package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Recital/internal/domain"
)

// specFlags — флаги параметров run, общие для run, submit и schedule.
// Незаданный флаг оставляет значение из конфигурации (или воркера).
type specFlags struct {
	engine      string
	model       string
	params      []string
	strategy    string
	concurrency int
	batchSize   int
	outputDir   string
}

func (f *specFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.engine, "engine", "e", "", "Engine variant (tone, piper, kokoro, batchhttp)")
	fs.StringVarP(&f.model, "model", "m", "", "Model reference (path or name)")
	fs.StringArrayVarP(&f.params, "param", "p", nil, "Engine parameter as KEY=VALUE (repeatable)")
	fs.StringVar(&f.strategy, "strategy", "", "Execution strategy: pool or microbatch")
	fs.IntVarP(&f.concurrency, "concurrency", "j", 0, "Pool workers (0 = number of CPUs)")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Texts per batch for microbatch")
	fs.StringVarP(&f.outputDir, "out", "o", "", "Output directory for audio files")
}

// spec собирает RunSpec из заданных флагов.
func (f *specFlags) spec() (domain.RunSpec, error) {
	params, err := parseParams(f.params)
	if err != nil {
		return domain.RunSpec{}, err
	}
	return domain.RunSpec{
		EngineVariant: f.engine,
		ModelRef:      f.model,
		EngineParams:  params,
		Strategy:      strings.ToLower(f.strategy),
		Concurrency:   f.concurrency,
		BatchSize:     f.batchSize,
		OutputDir:     f.outputDir,
	}, nil
}

// parseParams разбирает KEY=VALUE. Значение читается как YAML-скаляр:
// "1.2" → float, "true" → bool, остальное — строка.
func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q, expected KEY=VALUE", kv)
		}

		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		switch v.(type) {
		case string, bool, int, float64:
		default:
			// списки и словари не поддерживаются, передаём как есть
			v = raw
		}
		out[key] = v
	}
	return out, nil
}
