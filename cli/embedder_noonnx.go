//go:build !onnx

package cli

import (
	"fmt"

	"github.com/ebbing-ai/memorybank/config"
	"github.com/ebbing-ai/memorybank/memory"
)

func newONNXEmbedder(cfg config.Embedding) (memory.Embedder, error) {
	return nil, fmt.Errorf("onnx embedder requires building with -tags onnx")
}
