package dx12

import (
	"fmt"
	"sync"
)

// MemoryStats contains resource memory usage statistics.
type MemoryStats struct {
	// TotalBytes is the memory budget in bytes.
	TotalBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// AvailableBytes is the remaining budget.
	AvailableBytes uint64

	// PeakBytes is the highest UsedBytes seen.
	PeakBytes uint64

	// ResourceCount is the number of live resources.
	ResourceCount int

	// Utilization is the fraction of the budget in use (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, %d resources, peak %d MB]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.ResourceCount,
		s.PeakBytes/(1024*1024))
}

// memoryBudget accounts committed resource bytes against a fixed budget.
// Resources are owned by their wrappers, so nothing is evicted; an
// allocation that does not fit fails.
//
// memoryBudget is safe for concurrent use.
type memoryBudget struct {
	mu     sync.Mutex
	budget uint64
	used   uint64
	peak   uint64
	count  int
}

func newMemoryBudget(mb int) *memoryBudget {
	if mb < MinMemoryBudgetMB {
		mb = DefaultMemoryBudgetMB
	}
	//nolint:gosec // G115: mb is bounded below by MinMemoryBudgetMB
	return &memoryBudget{budget: uint64(mb) * 1024 * 1024}
}

// reserve accounts n bytes for a new resource.
func (m *memoryBudget) reserve(n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.budget-m.used {
		return fmt.Errorf("%w: %d bytes requested, %d of %d available",
			ErrMemoryBudgetExceeded, n, m.budget-m.used, m.budget)
	}
	m.used += n
	m.count++
	if m.used > m.peak {
		m.peak = m.used
	}
	return nil
}

// free returns the bytes of a released resource.
func (m *memoryBudget) free(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= min(n, m.used)
	if m.count > 0 {
		m.count--
	}
}

func (m *memoryBudget) stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MemoryStats{
		TotalBytes:     m.budget,
		UsedBytes:      m.used,
		AvailableBytes: m.budget - m.used,
		PeakBytes:      m.peak,
		ResourceCount:  m.count,
	}
	if m.budget > 0 {
		s.Utilization = float64(m.used) / float64(m.budget)
	}
	return s
}
