//go:build !onnx

package main

import (
	"errors"
	"log/slog"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
)

func newONNXEmbedder(*config.Config, *slog.Logger) (memory.Embedder, func() error, error) {
	return nil, nil, errors.New("onnx embeddings need a binary built with -tags onnx")
}
