package orchestrator

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/backend/mock"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// directionalEmbed maps known texts to fixed directions so cosine ranking is
// predictable. Unknown texts land between the axes.
func directionalEmbed(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		switch t {
		case "find alpha":
			out[i] = []float32{1, 0}
		case "alpha content":
			out[i] = []float32{2, 0} // same direction as the query, larger magnitude
		case "beta content":
			out[i] = []float32{1, 1}
		case "gamma content":
			out[i] = []float32{0, 1}
		default:
			out[i] = []float32{1, 2}
		}
	}
	return out
}

func TestRetrieve_RanksByCosineSimilarity(t *testing.T) {
	adapter := &mock.Adapter{EmbedFunc: directionalEmbed}
	o := newTestOrchestrator(t, adapter)

	docs := []*types.Document{
		{Content: "gamma content", Meta: map[string]string{"path": "c.txt"}},
		{Content: "alpha content", Meta: map[string]string{"path": "a.txt"}},
		{Content: "beta content", Meta: map[string]string{"path": "b.txt"}},
	}

	results, err := o.Retrieve(context.Background(), "find alpha", docs, ollamaProvider(), nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3", len(results))
	}

	wantOrder := []string{"alpha content", "beta content", "gamma content"}
	for i, want := range wantOrder {
		if results[i].Content != want {
			t.Errorf("result %d: got %q, want %q", i, results[i].Content, want)
		}
	}

	// Magnitude must not influence scores: alpha is colinear with the query.
	if got := results[0].Score; math.Abs(got-1) > 1e-5 {
		t.Errorf("top score: got %v, want 1", got)
	}
	if got := results[1].Score; math.Abs(got-math.Sqrt2/2) > 1e-5 {
		t.Errorf("second score: got %v, want %v", got, math.Sqrt2/2)
	}
	if got := results[2].Score; math.Abs(got) > 1e-5 {
		t.Errorf("third score: got %v, want 0", got)
	}

	// Results alias the caller's documents, metadata included.
	if results[0].Document != docs[1] {
		t.Error("top result does not alias its source document")
	}
	if results[0].Document.Meta["path"] != "a.txt" {
		t.Errorf("top result meta: got %q", results[0].Document.Meta["path"])
	}
}

func TestRetrieve_EmptyInputsShortCircuit(t *testing.T) {
	adapter := &mock.Adapter{EmbedFunc: directionalEmbed}
	o := newTestOrchestrator(t, adapter)
	ctx := context.Background()

	for name, call := range map[string]func() ([]types.RetrievalResult, error){
		"empty query": func() ([]types.RetrievalResult, error) {
			return o.Retrieve(ctx, "", []*types.Document{{Content: "x"}}, ollamaProvider(), nil)
		},
		"no documents": func() ([]types.RetrievalResult, error) {
			return o.Retrieve(ctx, "q", nil, ollamaProvider(), nil)
		},
		"blank documents": func() ([]types.RetrievalResult, error) {
			return o.Retrieve(ctx, "q", []*types.Document{{Content: "   "}}, ollamaProvider(), nil)
		},
	} {
		results, err := call()
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
			continue
		}
		if results == nil || len(results) != 0 {
			t.Errorf("%s: got %v, want empty non-nil result", name, results)
		}
	}
	if got := adapter.EmbedCallCount(); got != 0 {
		t.Errorf("backend invoked %d times on short-circuit paths", got)
	}
}

func TestRetrieve_ProgressIsMonotonicAndComplete(t *testing.T) {
	adapter := &mock.Adapter{EmbedFunc: directionalEmbed}
	o := newTestOrchestrator(t, adapter)

	docs := []*types.Document{
		{Content: "alpha content"},
		{Content: "beta content"},
	}

	var events []RetrievalProgress
	_, err := o.Retrieve(context.Background(), "find alpha", docs, ollamaProvider(), func(p RetrievalProgress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("events: got %d, want at least initial and final", len(events))
	}

	first := events[0]
	if first.ProcessedChunks != 0 || first.ProcessedDocuments != 0 {
		t.Errorf("initial event: got %+v, want zero coverage", first)
	}
	if first.TotalDocuments != 2 || first.TotalChunks != 2 {
		t.Errorf("initial event totals: got %+v", first)
	}

	last := events[len(events)-1]
	if last.ProcessedChunks != last.TotalChunks || last.ProcessedDocuments != last.TotalDocuments {
		t.Errorf("final event: got %+v, want full coverage", last)
	}

	for i := 1; i < len(events); i++ {
		if events[i].ProcessedChunks < events[i-1].ProcessedChunks {
			t.Errorf("event %d regressed: %d < %d", i, events[i].ProcessedChunks, events[i-1].ProcessedChunks)
		}
	}
}

func TestRetrieve_CancelledBeforeCall(t *testing.T) {
	adapter := &mock.Adapter{EmbedFunc: directionalEmbed}
	o := newTestOrchestrator(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events int
	_, err := o.Retrieve(ctx, "q", []*types.Document{{Content: "x"}}, ollamaProvider(), func(RetrievalProgress) {
		events++
	})
	if !errors.Is(err, backend.ErrCancelled) {
		t.Fatalf("err: got %v, want ErrCancelled", err)
	}
	if events != 0 {
		t.Errorf("progress events after cancellation: got %d, want 0", events)
	}
}

// cancellingEmbedAdapter cancels the request context from inside the chunk
// batch embedding call and still returns vectors, simulating a backend whose
// results land after the caller has aborted. The single-text query embedding
// waits out the cancellation.
type cancellingEmbedAdapter struct {
	cancel context.CancelFunc
}

func (c *cancellingEmbedAdapter) ListModels(ctx context.Context, provider types.Provider) ([]string, error) {
	return nil, backend.ErrUnsupported
}

func (c *cancellingEmbedAdapter) Complete(ctx context.Context, req backend.CompletionRequest, onProgress backend.ProgressFunc) (string, error) {
	return "", backend.ErrUnsupported
}

func (c *cancellingEmbedAdapter) Embed(ctx context.Context, provider types.Provider, texts []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	if len(texts) > 1 {
		c.cancel()
		return directionalEmbed(texts), nil
	}
	<-ctx.Done()
	return nil, backend.Cancelled(ctx)
}

func TestRetrieve_MidFlightCancellationSuppressesProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := newTestOrchestrator(t, &cancellingEmbedAdapter{cancel: cancel})

	docs := []*types.Document{
		{Content: "alpha content"},
		{Content: "beta content"},
	}

	var events []RetrievalProgress
	_, err := o.Retrieve(ctx, "find alpha", docs, ollamaProvider(), func(p RetrievalProgress) {
		events = append(events, p)
	})
	if !errors.Is(err, backend.ErrCancelled) {
		t.Fatalf("err: got %v, want ErrCancelled", err)
	}

	// The chunk batch completes after cancelling, so its coverage report
	// must never reach the caller. Only the initial zero event precedes
	// the cancellation.
	if len(events) != 1 {
		t.Fatalf("events: got %d, want only the initial event", len(events))
	}
	if events[0].ProcessedChunks != 0 || events[0].ProcessedDocuments != 0 {
		t.Errorf("initial event: got %+v, want zero coverage", events[0])
	}
}

func TestRetrieve_BackendErrorSurfaces(t *testing.T) {
	wantErr := errors.New("embedding service down")
	adapter := &mock.Adapter{EmbedErr: wantErr}
	o := newTestOrchestrator(t, adapter)

	_, err := o.Retrieve(context.Background(), "q", []*types.Document{{Content: "x"}}, ollamaProvider(), nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err: got %v, want %v", err, wantErr)
	}
}
