//go:build onnx

package main

import (
	"log/slog"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
)

func newONNXEmbedder(cfg *config.Config, logger *slog.Logger) (memory.Embedder, func() error, error) {
	emb, err := onnx.New(onnx.Config{
		ModelPath:         cfg.ONNXModel,
		TokenizerPath:     cfg.ONNXTokenizer,
		SharedLibraryPath: cfg.ONNXLibrary,
		Dimensions:        cfg.EmbedDimensions,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return emb, emb.Close, nil
}
