//go:build onnx

package cli

import (
	"github.com/ebbing-ai/memorybank/config"
	"github.com/ebbing-ai/memorybank/memory"
	"github.com/ebbing-ai/memorybank/memory/embedder/onnx"
)

func newONNXEmbedder(cfg config.Embedding) (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		Dimensions:    cfg.Dimensions,
	})
}
