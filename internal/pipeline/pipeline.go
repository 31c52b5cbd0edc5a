package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"blocknode/internal/blocktable"
	"blocknode/internal/blockstore"
	"blocknode/internal/errs"
	"blocknode/internal/filetable"
	"blocknode/internal/obs"
	"blocknode/internal/planner"
	"blocknode/internal/registry"
	"blocknode/internal/transport"
	"blocknode/internal/wire"
)

// PollInterval is how often Download polls the block cache for a
// requested block to arrive (§4.5).
const PollInterval = 100 * time.Millisecond

// BlockTimeout is T_block: how long Download waits on one candidate
// before trying the next replica (§4.4).
const BlockTimeout = 5 * time.Second

// Sender is the subset of *transport.Mesh the pipeline needs to place
// blocks and propagate metadata changes.
type Sender interface {
	SendToNode(nodeID int, msg wire.Message) error
	Broadcast(msg wire.Message, exclude map[int]bool)
}

// Pipeline implements C7, wired to the registries, local block store,
// placement planner, and mesh transport it coordinates across.
type Pipeline struct {
	selfID      func() int
	reg         *registry.Registry
	blocks      *blocktable.Table
	files       *filetable.Table
	store       *blockstore.Store
	plan        *planner.Planner
	mesh        Sender
	cache       *BlockCache
	log         *slog.Logger
	blocksMoved metric.Int64Counter
}

// Config bundles Pipeline's collaborators.
type Config struct {
	SelfID   func() int
	Registry *registry.Registry
	Blocks   *blocktable.Table
	Files    *filetable.Table
	Store    *blockstore.Store
	Planner  *planner.Planner
	Mesh     Sender
	Cache    *BlockCache
	Logger   *slog.Logger
}

// New builds a Pipeline.
func New(cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	counter, err := obs.Meter().Int64Counter("blocknode.blocks_moved",
		metric.WithDescription("blocks written or sent by this pipeline"))
	if err != nil {
		log.Warn("register blocks_moved counter failed", "err", err)
	}
	return &Pipeline{
		selfID:      cfg.SelfID,
		reg:         cfg.Registry,
		blocks:      cfg.Blocks,
		files:       cfg.Files,
		store:       cfg.Store,
		plan:        cfg.Planner,
		mesh:        cfg.Mesh,
		cache:       cfg.Cache,
		log:         log,
		blocksMoved: counter,
	}
}

func (p *Pipeline) recordBlockMoved(ctx context.Context, kind string) {
	if p.blocksMoved == nil {
		return
	}
	p.blocksMoved.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

type bucketEntry struct {
	blockID int
	owner   int
	role    blocktable.Role
}

func bucketByIndex(assignments []planner.Assignment) map[int][]bucketEntry {
	buckets := make(map[int][]bucketEntry)
	for _, a := range assignments {
		buckets[a.FileBlockIndex] = append(buckets[a.FileBlockIndex], bucketEntry{
			blockID: a.BlockID, owner: a.NodeID, role: a.Role,
		})
	}
	return buckets
}

// Upload implements §4.4's upload algorithm: split filePath into 1 MiB
// chunks, plan placement via C5, write/send each chunk to its planned
// owners, register the result in C4, and broadcast a METADATA_SYNC.
func (p *Pipeline) Upload(ctx context.Context, filePath string) (err error) {
	ctx, span := obs.Tracer().Start(ctx, "pipeline.Upload", trace.WithAttributes(
		attribute.String("file_path", filePath),
	))
	defer func() { endSpan(span, err) }()

	self := p.selfID()
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", errs.ErrBlockIOLocal, filePath, err)
	}
	size := info.Size()
	numBlocks := filetable.NumBlocksFor(size)
	fileName := info.Name()

	assignments := p.plan.Plan(p.reg, p.blocks, numBlocks, fileName, self)
	originals := 0
	for _, a := range assignments {
		if a.Role == blocktable.RoleOriginal {
			originals++
		}
	}
	if originals < numBlocks {
		return fmt.Errorf("%w: placed %d/%d originals for %s", errs.ErrPlanInsufficient, originals, numBlocks, fileName)
	}

	buckets := bucketByIndex(assignments)
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", errs.ErrBlockIOLocal, filePath, err)
	}
	defer f.Close()
	reader := bufio.NewReaderSize(f, filetable.BlockSizeBytes)

	var blockIDs []int
	for idx := 0; idx < numBlocks; idx++ {
		chunk := make([]byte, filetable.BlockSizeBytes)
		n, err := io.ReadFull(reader, chunk)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return fmt.Errorf("%w: read chunk %d of %s: %v", errs.ErrBlockIOLocal, idx, fileName, err)
		}
		chunk = chunk[:n]

		for _, entry := range buckets[idx] {
			blockIDs = append(blockIDs, entry.blockID)
			if entry.owner == self {
				if err := p.store.Write(entry.blockID, chunk); err != nil {
					return err
				}
				p.recordBlockMoved(ctx, "write_local")
				continue
			}
			if err := p.sendBlock(entry, fileName, idx, chunk); err != nil {
				return err
			}
			p.recordBlockMoved(ctx, "send_remote")
		}
	}

	sort.Ints(blockIDs)
	p.files.Put(filetable.Record{
		FileName:   fileName,
		SizeBytes:  size,
		NumBlocks:  numBlocks,
		UploadTime: time.Now(),
		BlockIDs:   blockIDs,
	})
	p.syncMetadata(ctx)
	return nil
}

func (p *Pipeline) sendBlock(entry bucketEntry, fileName string, idx int, data []byte) error {
	payload := wire.PayloadBlockSend{
		BlockID:        entry.blockID,
		FileName:       fileName,
		FileBlockIndex: idx,
		BlockType:      string(entry.role),
		Data:           wire.EncodeBlockData(data),
	}
	msg, err := wire.New(wire.BlockSend, p.selfID(), payload)
	if err != nil {
		return err
	}
	if err := p.mesh.SendToNode(entry.owner, msg); err != nil {
		return fmt.Errorf("%w: block %d to node %d: %v", errs.ErrSendFailure, entry.blockID, entry.owner, err)
	}
	return nil
}

// syncMetadata pushes the full C4/C3 state to every peer (§4.4's
// "trigger metadata sync").
func (p *Pipeline) syncMetadata(ctx context.Context) {
	_, span := obs.Tracer().Start(ctx, "pipeline.syncMetadata")
	defer span.End()

	payload := wire.PayloadMetadataSync{}
	for _, r := range p.files.All() {
		payload.Files = append(payload.Files, fileToWire(r))
	}
	for _, s := range p.blocks.All() {
		payload.Blocks = append(payload.Blocks, slotToWire(s))
	}
	msg, err := wire.New(wire.MetadataSync, p.selfID(), payload)
	if err != nil {
		p.log.Warn("metadata sync marshal failed", "err", err)
		return
	}
	p.mesh.Broadcast(msg, nil)
}

// Download implements §4.4's download algorithm: reconstruct fileName
// at savePath by reading locally-owned blocks and requesting the rest
// from the mesh, polling the block cache for each remote reply.
func (p *Pipeline) Download(ctx context.Context, fileName, savePath string) (err error) {
	ctx, span := obs.Tracer().Start(ctx, "pipeline.Download", trace.WithAttributes(
		attribute.String("file_name", fileName),
	))
	defer func() { endSpan(span, err) }()

	self := p.selfID()
	rec, ok := p.files.Get(fileName)
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrUnknownFile, fileName)
	}
	slots := p.blocks.ForFile(fileName)
	buckets := make(map[int][]blocktable.Slot)
	for _, s := range slots {
		if s.Status != blocktable.StatusUsed {
			continue
		}
		buckets[s.FileBlockIndex] = append(buckets[s.FileBlockIndex], s)
	}

	out, err := os.Create(savePath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", errs.ErrBlockIOLocal, savePath, err)
	}
	defer out.Close()

	for idx := 0; idx < rec.NumBlocks; idx++ {
		data, err := p.fetchIndex(ctx, self, buckets[idx])
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("%w: write %s: %v", errs.ErrBlockIOLocal, savePath, err)
		}
	}
	return nil
}

func (p *Pipeline) fetchIndex(ctx context.Context, self int, candidates []blocktable.Slot) ([]byte, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no used slot for this index", errs.ErrBlockMissing)
	}
	for _, s := range candidates {
		if s.OwnerNodeID == self {
			data, err := p.store.Read(s.BlockID)
			if err != nil {
				continue
			}
			return data, nil
		}
	}
	for _, s := range candidates {
		if s.OwnerNodeID == self {
			continue
		}
		data, err := p.fetchRemote(ctx, s)
		if err == nil {
			p.recordBlockMoved(ctx, "fetch_remote")
			return data, nil
		}
		p.log.Warn("block fetch failed, trying next replica", "block_id", s.BlockID, "err", err)
	}
	return nil, fmt.Errorf("%w: no candidate yielded block", errs.ErrBlockTimeout)
}

func (p *Pipeline) fetchRemote(ctx context.Context, s blocktable.Slot) ([]byte, error) {
	msg, err := wire.New(wire.BlockRequest, p.selfID(), wire.PayloadBlockRequest{BlockID: s.BlockID})
	if err != nil {
		return nil, err
	}
	p.cache.MarkPending(s.BlockID)
	if err := p.mesh.SendToNode(s.OwnerNodeID, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSendFailure, err)
	}

	deadline := time.Now().Add(BlockTimeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if data, ok := p.cache.Take(s.BlockID); ok {
			return data, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("%w: block %d from node %d", errs.ErrBlockTimeout, s.BlockID, s.OwnerNodeID)
}

// Delete implements §4.4's delete algorithm: free this file's slots
// (deleting local data for any we own), remove the C4 record, and
// broadcast DELETE_FILE so peers converge.
func (p *Pipeline) Delete(ctx context.Context, fileName string) (err error) {
	ctx, span := obs.Tracer().Start(ctx, "pipeline.Delete", trace.WithAttributes(
		attribute.String("file_name", fileName),
	))
	defer func() { endSpan(span, err) }()

	self := p.selfID()
	if _, ok := p.files.Get(fileName); !ok {
		return fmt.Errorf("%w: %s", errs.ErrUnknownFile, fileName)
	}
	for _, s := range p.blocks.ForFile(fileName) {
		if s.OwnerNodeID == self {
			if err := p.store.Delete(s.BlockID); err != nil {
				p.log.Warn("delete local block failed", "block_id", s.BlockID, "err", err)
			}
		}
		p.blocks.Free(s.BlockID)
	}
	p.files.Delete(fileName)

	msg, err := wire.New(wire.DeleteFile, self, wire.PayloadDeleteFile{FileName: fileName})
	if err != nil {
		return err
	}
	p.mesh.Broadcast(msg, nil)
	return nil
}

// endSpan records err on span (if any) and ends it; shared by every
// Pipeline operation that opens a span over a named return.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
