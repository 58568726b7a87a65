package flush

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/shared/id"
)

const spoolExt = ".msgpack"

// Batch is one spooled handler call
type Batch struct {
	Category   Category       `msgpack:"category"`
	WrittenAt  int64          `msgpack:"writtenAt"`
	Blocks     []WireBlock    `msgpack:"blocks,omitempty"`
	Logs       []WireLog      `msgpack:"logs,omitempty"`
	Timestamps WireTimestamps `msgpack:"timestamps,omitempty"`
}

// Len returns the number of items in the batch
func (b Batch) Len() int {
	switch b.Category {
	case CategoryBlocks:
		return len(b.Blocks)
	case CategoryLogs:
		return len(b.Logs)
	default:
		return len(b.Timestamps)
	}
}

// Deliver replays the batch into a handler
func (b Batch) Deliver(ctx context.Context, h Handler) error {
	switch b.Category {
	case CategoryBlocks:
		return h.FlushBlocks(ctx, BlocksFromWire(b.Blocks))
	case CategoryLogs:
		logs, err := LogsFromWire(b.Logs)
		if err != nil {
			return err
		}
		return h.FlushLogs(ctx, logs)
	case CategoryEntered, CategoryExited, CategoryReturned:
		return FlushTimestamps(ctx, h, b.Category, TimestampsFromWire(b.Timestamps))
	default:
		return fmt.Errorf("unknown batch category %q", b.Category)
	}
}

// SpoolFile is a batch read back from disk
type SpoolFile struct {
	Path  string
	Batch Batch
}

// BadSpoolFile is a spool file that could not be read or decoded
type BadSpoolFile struct {
	Path string
	Err  error
}

// Spool is the content of a spool directory
type Spool struct {
	Files []SpoolFile    // decoded batches, oldest first
	Bad   []BadSpoolFile // skipped files, left on disk
}

// SpoolHandler writes every batch to its own msgpack file
type SpoolHandler struct {
	dir    string
	strict bool
	ids    *id.Generator
	logger *zap.Logger
}

// NewSpoolHandler creates the spool directory and returns a handler writing into it
func NewSpoolHandler(dir string, strict bool, logger *zap.Logger) (*SpoolHandler, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpoolHandler{
		dir:    dir,
		strict: strict,
		ids:    id.NewGenerator(),
		logger: logger,
	}, nil
}

// Dir returns the spool directory
func (s *SpoolHandler) Dir() string {
	return s.dir
}

// FlushBlocks spools blocks
func (s *SpoolHandler) FlushBlocks(_ context.Context, blocks []model.Block) error {
	return s.write(Batch{Category: CategoryBlocks, Blocks: BlocksToWire(blocks)})
}

// FlushLogs spools logs
func (s *SpoolHandler) FlushLogs(_ context.Context, logs []model.BlockLog) error {
	return s.write(Batch{Category: CategoryLogs, Logs: LogsToWire(logs)})
}

// FlushEntered spools entered timestamps
func (s *SpoolHandler) FlushEntered(_ context.Context, entered Timestamps) error {
	return s.write(Batch{Category: CategoryEntered, Timestamps: TimestampsToWire(entered)})
}

// FlushExited spools exited timestamps
func (s *SpoolHandler) FlushExited(_ context.Context, exited Timestamps) error {
	return s.write(Batch{Category: CategoryExited, Timestamps: TimestampsToWire(exited)})
}

// FlushReturned spools returned timestamps
func (s *SpoolHandler) FlushReturned(_ context.Context, returned Timestamps) error {
	return s.write(Batch{Category: CategoryReturned, Timestamps: TimestampsToWire(returned)})
}

func (s *SpoolHandler) write(batch Batch) error {
	batch.WrittenAt = time.Now().UnixMilli()

	err := s.writeFile(batch)
	if err == nil {
		return nil
	}

	s.logger.Error("Failed to spool batch",
		zap.String("category", batch.Category.String()),
		zap.Int("count", batch.Len()),
		zap.String("dir", s.dir),
		zap.Error(err))

	if s.strict {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// writeFile encodes into a temp file and renames it into place
func (s *SpoolHandler) writeFile(batch Batch) (err error) {
	final := filepath.Join(s.dir, fmt.Sprintf("%s-%s%s", batch.Category, s.ids.NewString(), spoolExt))

	f, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(&batch); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), final)
}

// ReadSpool decodes every spooled batch in dir, oldest first. A file that
// cannot be read or decoded is reported in Spool.Bad and does not stop the
// others. Only a missing or unreadable directory is an error.
func ReadSpool(dir string) (Spool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Spool{}, fmt.Errorf("read spool directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), spoolExt) {
			continue
		}
		names = append(names, e.Name())
	}
	// Ids are time-sortable, so name order within a category is write order
	sort.Slice(names, func(i, j int) bool {
		return spoolKey(names[i]) < spoolKey(names[j])
	})

	spool := Spool{Files: make([]SpoolFile, 0, len(names))}
	for _, name := range names {
		path := filepath.Join(dir, name)
		batch, err := readBatch(path)
		if err != nil {
			spool.Bad = append(spool.Bad, BadSpoolFile{Path: path, Err: err})
			continue
		}
		spool.Files = append(spool.Files, SpoolFile{Path: path, Batch: batch})
	}
	return spool, nil
}

func readBatch(path string) (Batch, error) {
	var batch Batch
	data, err := os.ReadFile(path)
	if err != nil {
		return batch, fmt.Errorf("read: %w", err)
	}
	if err := msgpack.Unmarshal(data, &batch); err != nil {
		return batch, fmt.Errorf("decode: %w", err)
	}
	if !batch.Category.Valid() {
		return batch, fmt.Errorf("unknown batch category %q", batch.Category)
	}
	return batch, nil
}

// spoolKey orders files by their id part, ignoring the category prefix
func spoolKey(name string) string {
	name = strings.TrimSuffix(name, spoolExt)
	if i := strings.IndexByte(name, '-'); i >= 0 {
		return name[i+1:] + name[:i]
	}
	return name
}
