package proc

import (
	"context"
	"fmt"

	"github.com/elastic/gosigar"

	"github.com/skillcoder/workermem-governor/internal/infra/metrics"
)

// HostMemory is a point-in-time snapshot of host memory accounting.
type HostMemory struct {
	TotalBytes uint64 `json:"totalBytes"`
	UsedBytes  uint64 `json:"usedBytes"`
	FreeBytes  uint64 `json:"freeBytes"`
}

// HostMemoryQuery reads host memory totals. Used/free follow the kernel's
// "actual" accounting (buffers and cache count as free).
func (a *Adapter) HostMemoryQuery(_ context.Context) (HostMemory, error) {
	var mem gosigar.Mem
	if err := mem.Get(); err != nil {
		return HostMemory{}, fmt.Errorf("get host memory: %w", err)
	}

	metrics.SetHostMemory(mem.Total, mem.ActualUsed)

	return HostMemory{
		TotalBytes: mem.Total,
		UsedBytes:  mem.ActualUsed,
		FreeBytes:  mem.ActualFree,
	}, nil
}
