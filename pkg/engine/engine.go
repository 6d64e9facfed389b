package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goerzh/kvs/pkg/kverrors"
)

// DefaultCompactionThreshold is the reference value from spec.md: 1 MiB of
// estimated stale bytes triggers a synchronous compaction.
const DefaultCompactionThreshold = 1024 * 1024

// Logger is the opaque logging sink the engine is handed; it accepts the
// core's log lines without the core knowing or caring how they're rendered.
// *logger.Logger (pkg/logger) and *zap.SugaredLogger both satisfy it.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// Metrics is the optional metrics sink. A nil Metrics is always valid — the
// engine must function identically whether or not anyone is counting.
type Metrics interface {
	ObserveSet()
	ObserveGet()
	ObserveRemove()
	ObserveCompaction(bytesReclaimed int64)
}

type noopLogger struct{}

func (noopLogger) Infow(string, ...interface{})  {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}

// Options configures Open.
type Options struct {
	Dir                 string
	CompactionThreshold int64 // 0 means DefaultCompactionThreshold
	Logger              Logger
	Metrics             Metrics
}

// Engine is the log-structured key/value store described by spec.md §4.
// All exported methods are safe to call concurrently; each acquires mu for
// its full duration, including any compaction a write triggers.
type Engine struct {
	mu sync.Mutex

	dir                 string
	compactionThreshold int64
	log                 Logger
	metrics             Metrics

	index       *index
	readers     map[uint64]*codedReader
	writer      *codedWriter
	currentGen  uint64
	uncompacted int64
}

// Open reconstructs the index by replaying every generation found in dir (or
// creates dir if it doesn't exist yet), then opens a writer for the next
// generation, per spec.md §4.3.
func Open(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	threshold := opts.CompactionThreshold
	if threshold <= 0 {
		threshold = DefaultCompactionThreshold
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, kverrors.NewIo(err)
	}

	e := &Engine{
		dir:                 opts.Dir,
		compactionThreshold: threshold,
		log:                 opts.Logger,
		metrics:             opts.Metrics,
		index:               newIndex(),
		readers:             make(map[uint64]*codedReader),
	}

	gens, err := listGenerations(opts.Dir)
	if err != nil {
		return nil, err
	}

	var uncompacted int64
	for _, gen := range gens {
		f, err := os.Open(logPath(opts.Dir, gen))
		if err != nil {
			return nil, kverrors.NewIo(err)
		}
		n, err := e.loadGeneration(gen, f)
		if err != nil {
			f.Close()
			return nil, err
		}
		uncompacted += n
		e.readers[gen] = newCodedReader(f)
	}
	e.uncompacted = uncompacted

	nextGen := uint64(1)
	if len(gens) > 0 {
		nextGen = gens[len(gens)-1] + 1
	}
	if err := e.openWriter(nextGen); err != nil {
		return nil, err
	}

	e.log.Infow("engine opened", "dir", opts.Dir, "generations", len(gens), "keys", e.index.len())
	return e, nil
}

// loadGeneration replays every record in f, folding it into the index and
// returning the number of bytes it renders stale.
func (e *Engine) loadGeneration(gen uint64, f *os.File) (int64, error) {
	var uncompacted int64
	err := replayAll(f, func(rec Record, start, end int64) error {
		length := end - start
		switch rec.Kind {
		case kindSet:
			old, existed := e.index.set(rec.Key, Locator{Gen: gen, Offset: start, Len: length})
			if existed {
				uncompacted += old.Len
			}
		case kindRemove:
			old, existed := e.index.remove(rec.Key)
			if existed {
				uncompacted += old.Len
			}
			uncompacted += length
		default:
			return kverrors.NewUnexpectedRecordKind()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uncompacted, nil
}

// openWriter creates (or reopens) gen's log file for appending and
// registers it as both the active writer and a reader, making the writer
// always the highest generation as spec.md §3 requires.
func (e *Engine) openWriter(gen uint64) error {
	path := logPath(e.dir, gen)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return kverrors.NewIo(err)
	}
	w, err := newCodedWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	rf, err := os.Open(path)
	if err != nil {
		f.Close()
		return kverrors.NewIo(err)
	}
	e.writer = w
	e.currentGen = gen
	e.readers[gen] = newCodedReader(rf)
	return nil
}

// Set inserts or overwrites key -> value. The write is durable (flushed)
// before Set returns Ok, per spec.md §4.1.
func (e *Engine) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.writer.offset
	buf, err := encodeRecord(NewSetRecord(key, value))
	if err != nil {
		return err
	}
	if _, err := e.writer.Write(buf); err != nil {
		return err
	}
	if err := e.writer.Flush(); err != nil {
		return err
	}
	end := e.writer.offset

	old, existed := e.index.set(key, Locator{Gen: e.currentGen, Offset: start, Len: end - start})
	if existed {
		e.uncompacted += old.Len
	}

	if e.metrics != nil {
		e.metrics.ObserveSet()
	}

	if e.uncompacted > e.compactionThreshold {
		if err := e.compact(); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the live value for key, or ok=false if absent. It never
// mutates engine state.
func (e *Engine) Get(key string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	loc, ok := e.index.get(key)
	if !ok {
		if e.metrics != nil {
			e.metrics.ObserveGet()
		}
		return "", false, nil
	}

	reader, ok := e.readers[loc.Gen]
	if !ok {
		return "", false, kverrors.NewIo(fmt.Errorf("missing reader for generation %d", loc.Gen))
	}
	rec, err := reader.ReadAt(loc.Offset, loc.Len)
	if err != nil {
		return "", false, err
	}
	if !rec.IsSet() {
		return "", false, kverrors.NewUnexpectedRecordKind()
	}

	if e.metrics != nil {
		e.metrics.ObserveGet()
	}
	return rec.Value, true, nil
}

// Remove deletes key. It returns kverrors.ErrKeyNotFound if key is absent at
// call time, and in that case writes nothing to the log.
func (e *Engine) Remove(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.index.get(key); !ok {
		return kverrors.NewKeyNotFound()
	}

	start := e.writer.offset
	buf, err := encodeRecord(NewRemoveRecord(key))
	if err != nil {
		return err
	}
	if _, err := e.writer.Write(buf); err != nil {
		return err
	}
	if err := e.writer.Flush(); err != nil {
		return err
	}
	end := e.writer.offset
	e.uncompacted += end - start

	old, _ := e.index.remove(key)
	e.uncompacted += old.Len

	if e.metrics != nil {
		e.metrics.ObserveRemove()
	}

	if e.uncompacted > e.compactionThreshold {
		if err := e.compact(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every open file handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	if e.writer != nil {
		if err := e.writer.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := e.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for gen, r := range e.readers {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.readers, gen)
	}
	return firstErr
}

// UncompactedBytes returns the current estimate of stale on-disk bytes.
func (e *Engine) UncompactedBytes() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uncompacted
}

func logPath(dir string, gen uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.log", gen))
}

// listGenerations enumerates dir's *.log files, parses their stems as
// generation numbers, ignores unparseable stems, and returns them sorted
// ascending.
func listGenerations(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, kverrors.NewIo(err)
	}
	var gens []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		stem := strings.TrimSuffix(name, ".log")
		gen, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			continue
		}
		gens = append(gens, gen)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}
