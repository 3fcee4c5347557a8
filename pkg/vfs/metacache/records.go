package metacache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zhangzqs/govfs/pkg/vfs"
)

// accessRecord tracks one cached path for the LRU sweeper.
type accessRecord struct {
	path          string
	lastAccess    time.Time
	accessCount   int
	cacheFilePath vfs.Path
}

// recordTable is the in-memory access-record table, mutated by
// foreground cache reads/deletes and drained by the background sweeper.
type recordTable struct {
	mu      sync.Mutex
	records map[string]*accessRecord
}

func newRecordTable() *recordTable {
	return &recordTable{records: map[string]*accessRecord{}}
}

// Touch records a successful cache read for path.
func (t *recordTable) Touch(path string, cacheFilePath vfs.Path) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[path]
	if !ok {
		r = &accessRecord{path: path, cacheFilePath: cacheFilePath}
		t.records[path] = r
	}
	r.lastAccess = time.Now()
	r.accessCount++
}

// Forget drops the record for path, if any.
func (t *recordTable) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, path)
}

// Under returns every recorded path equal to or nested below prefix.
func (t *recordTable) Under(prefix vfs.Path) []vfs.Path {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []vfs.Path
	for recorded := range t.records {
		p, err := vfs.ParsePath(recorded)
		if err != nil {
			continue
		}
		if p.HasPrefix(prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (t *recordTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// oldest returns up to n records sorted by lastAccess ascending.
func (t *recordTable) oldest(n int) []*accessRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := make([]*accessRecord, 0, len(t.records))
	for _, r := range t.records {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].lastAccess.Before(all[j].lastAccess)
	})

	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// sweeper evicts least-recently-used cache entries on a timer. A sweep
// runs only when the table exceeds maxCacheSize; overlapping sweeps are
// prevented by the running flag.
type sweeper struct {
	table            *recordTable
	cacheFS          vfs.FileSystem
	maxCacheSize     int
	cleanupBatchSize int
	interval         time.Duration
	logger           *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped sync.WaitGroup
}

func newSweeper(table *recordTable, cacheFS vfs.FileSystem, maxCacheSize, cleanupBatchSize int, interval time.Duration, logger *slog.Logger) *sweeper {
	return &sweeper{
		table:            table,
		cacheFS:          cacheFS,
		maxCacheSize:     maxCacheSize,
		cleanupBatchSize: cleanupBatchSize,
		interval:         interval,
		logger:           logger,
		done:             make(chan struct{}),
	}
}

func (s *sweeper) Start() {
	s.stopped.Add(1)
	go func() {
		defer s.stopped.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

func (s *sweeper) Stop() {
	close(s.done)
	s.stopped.Wait()
}

// Sweep performs one eviction pass. Per-entry failures are counted but
// never abort the pass.
func (s *sweeper) Sweep() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	size := s.table.Len()
	if size <= s.maxCacheSize {
		return
	}

	evict := (size - s.maxCacheSize) + s.cleanupBatchSize
	victims := s.table.oldest(evict)

	ctx := vfs.NewContext(context.Background(), s.logger)

	failures := 0
	for _, victim := range victims {
		s.table.Forget(victim.path)
		if err := s.cacheFS.Delete(ctx, victim.cacheFilePath, vfs.DeleteOptions{}); err != nil && !vfs.Is(err, vfs.CodeNotFound) {
			failures++
		}
	}

	s.logger.Debug("metadata cache sweep finished",
		slog.Int("evicted", len(victims)),
		slog.Int("failures", failures),
	)
}
