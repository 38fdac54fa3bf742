package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/manyfold-ai/manyfold/internal/observe"
	"github.com/manyfold-ai/manyfold/internal/retrieval"
	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// chunkRef ties one chunk text to the document it was split from.
type chunkRef struct {
	content string
	doc     *types.Document
}

// Retrieve splits the documents into chunks, embeds query and chunks through
// the cached embedding service, and returns every chunk ranked by descending
// cosine similarity to the query. Results alias their source documents.
//
// An empty query or document list short-circuits to an empty result without
// touching the backend. onProgress, when non-nil, receives monotonic coverage
// events: an initial zero event, one per embedding progress report (a
// document counts as processed only once every one of its chunks has a
// vector), and a final full-coverage event. No events follow an observed
// cancellation.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, docs []*types.Document, provider types.Provider, onProgress ProgressFunc) ([]types.RetrievalResult, error) {
	if query == "" || len(docs) == 0 {
		return []types.RetrievalResult{}, nil
	}
	adapter, err := o.resolve(provider)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}

	ctx, span := observe.StartSpan(ctx, "orchestrator.retrieve")
	defer span.End()
	start := time.Now()

	// Split each document, remembering which document every chunk came from
	// and how many chunks each document produced.
	var (
		refs      []chunkRef
		texts     []string
		docChunks = make([]int, len(docs))
	)
	for i, doc := range docs {
		chunks := retrieval.Split(doc.Content, o.maxChunkLen)
		docChunks[i] = len(chunks)
		for _, c := range chunks {
			refs = append(refs, chunkRef{content: c, doc: doc})
			texts = append(texts, c)
		}
	}
	if len(texts) == 0 {
		return []types.RetrievalResult{}, nil
	}

	emit := newProgressEmitter(onProgress, docs, docChunks, texts)
	emit.report(ctx, nil)

	// Embed the query and the chunk batch concurrently under one context.
	var (
		queryVec  []float32
		chunkVecs [][]float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecs, err := o.embeds.Embed(gctx, adapter, provider, []string{query}, nil)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		if len(vecs) != 1 {
			return fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
		}
		queryVec = vecs[0]
		return nil
	})
	g.Go(func() error {
		vecs, err := o.embeds.EmbedChunks(gctx, adapter, provider, texts, func(done []string) {
			emit.report(gctx, done)
		})
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		chunkVecs = vecs
		return nil
	})
	if err := g.Wait(); err != nil {
		o.record(ctx, provider, "retrieve", err)
		if ctx.Err() != nil {
			return nil, backend.Cancelled(ctx)
		}
		return nil, backend.Normalize(ctx, err)
	}

	// Unit-normalise everything so the dot product below is cosine
	// similarity regardless of backend vector magnitudes.
	queryVec = retrieval.Normalize(queryVec)
	scored := make([]retrieval.Scored, len(refs))
	for i, ref := range refs {
		scored[i] = retrieval.Scored{
			Content:  ref.content,
			Vector:   retrieval.Normalize(chunkVecs[i]),
			Document: ref.doc,
		}
	}

	emit.report(ctx, texts)

	results := retrieval.Rank(queryVec, scored)
	o.record(ctx, provider, "retrieve", nil)
	if o.metrics != nil {
		o.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
	}
	return results, nil
}

// progressEmitter recomputes document coverage for every embedding progress
// report and forwards monotonic events to the caller.
type progressEmitter struct {
	mu        sync.Mutex
	fn        ProgressFunc
	docs      []*types.Document
	docChunks []int
	docTexts  [][]string
	total     RetrievalProgress
	lastDone  int
}

func newProgressEmitter(fn ProgressFunc, docs []*types.Document, docChunks []int, texts []string) *progressEmitter {
	e := &progressEmitter{
		fn:        fn,
		docs:      docs,
		docChunks: docChunks,
		total: RetrievalProgress{
			TotalDocuments: len(docs),
			TotalChunks:    len(texts),
		},
	}
	// Record each document's chunk texts once so coverage recomputation is a
	// set lookup per report.
	e.docTexts = make([][]string, len(docs))
	i := 0
	for d, n := range docChunks {
		e.docTexts[d] = texts[i : i+n]
		i += n
	}
	return e
}

// report emits one progress event for the given processed texts. Events are
// suppressed once ctx is cancelled and whenever coverage would move
// backwards (stale reports from racing embedding batches).
func (e *progressEmitter) report(ctx context.Context, done []string) {
	if e == nil || e.fn == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(done) < e.lastDone {
		return
	}
	e.lastDone = len(done)

	doneSet := make(map[string]struct{}, len(done))
	for _, t := range done {
		doneSet[t] = struct{}{}
	}

	event := e.total
	event.ProcessedChunks = len(done)
	for d := range e.docs {
		if e.docChunks[d] == 0 {
			continue
		}
		complete := true
		for _, t := range e.docTexts[d] {
			if _, ok := doneSet[t]; !ok {
				complete = false
				break
			}
		}
		if complete {
			event.ProcessedDocuments++
		}
	}
	e.fn(event)
}
