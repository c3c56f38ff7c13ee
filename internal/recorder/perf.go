package recorder

import (
	"encoding/json"
	"runtime"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
)

// snapshotResources captures process resource usage at record time.
func snapshotResources() domain.ResourceUsage {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return domain.ResourceUsage{
		HeapAllocBytes: stats.HeapAlloc,
		HeapObjects:    stats.HeapObjects,
		NumGC:          stats.NumGC,
		NumGoroutine:   runtime.NumGoroutine(),
	}
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// EstimateTokens returns a tiktoken estimate of a payload's token count,
// or 0 when the payload cannot be serialized or the codec is unavailable.
// Cl100kBase is close enough across current chat models for a size metric.
func EstimateTokens(payload any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0
	}

	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	if codec == nil {
		return 0
	}

	ids, _, err := codec.Encode(string(raw))
	if err != nil {
		return 0
	}
	return len(ids)
}
