package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/graphstore/internal/domain"
)

type countingProvider struct {
	dim   int
	calls int32
	delay time.Duration
}

func (p *countingProvider) Name() string   { return "counting" }
func (p *countingProvider) Dimension() int { return p.dim }
func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	out := make([]float32, p.dim)
	out[0] = float32(len(text))
	return out, nil
}

func TestHashProviderDeterministicAndNormalized(t *testing.T) {
	p := NewHashProvider(0)
	if p.Dimension() != DefaultHashDimension {
		t.Fatalf("Dimension: want=%d got=%d", DefaultHashDimension, p.Dimension())
	}
	a, _ := p.Embed(context.Background(), "Acme Corp builds rockets")
	b, _ := p.Embed(context.Background(), "Acme Corp builds rockets")
	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("not deterministic at %d", i)
		}
		norm += float64(a[i]) * float64(a[i])
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Fatalf("norm: want=1 got=%v", norm)
	}
	empty, _ := p.Embed(context.Background(), "  ")
	for _, v := range empty {
		if v != 0 {
			t.Fatalf("empty text should embed to zeros")
		}
	}
}

func TestHashProviderSimilarity(t *testing.T) {
	p := NewHashProvider(256)
	q, _ := p.Embed(context.Background(), "who employs Jane")
	near, _ := p.Embed(context.Background(), "Jane Doe | PERSON | employee")
	far, _ := p.Embed(context.Background(), "quarterly revenue of widgets")
	if cosine(q, near) <= cosine(q, far) {
		t.Fatalf("expected shared tokens to score higher: near=%v far=%v", cosine(q, near), cosine(q, far))
	}
}

func TestCheckDimension(t *testing.T) {
	p := NewHashProvider(10)
	err := CheckDimension(p, make([]float32, 8))
	var derr *DimensionError
	if !errors.As(err, &derr) || derr.Want != 10 || derr.Got != 8 {
		t.Fatalf("CheckDimension: got=%v", err)
	}
	if err := CheckDimension(p, make([]float32, 10)); err != nil {
		t.Fatalf("CheckDimension: unexpected %v", err)
	}
}

func TestCachedSharesConcurrentCalls(t *testing.T) {
	inner := &countingProvider{dim: 4, delay: 20 * time.Millisecond}
	c := NewCached(inner, NewMemoryStore(), time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Embed(context.Background(), "same text"); err != nil {
				t.Errorf("Embed: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, err := c.Embed(context.Background(), "same text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := atomic.LoadInt32(&inner.calls); got != 1 {
		t.Fatalf("upstream calls: want=1 got=%d", got)
	}
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, float32(math.Pi)}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decodeVector: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: want=%v got=%v", i, in[i], out[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated vector")
	}
}

func TestEntityText(t *testing.T) {
	e := &domain.Entity{
		Name:        "Acme Corp",
		Type:        "ORGANIZATION",
		Description: "Rocket maker",
		Properties:  domain.PropertiesOf("ticker", "ACME", "hq", map[string]any{"city": "Berlin"}, "founded", 1999, "name", "dup"),
	}
	want := "Acme Corp | ORGANIZATION | Rocket maker | founded: 1999 | ticker: ACME"
	if got := EntityText(e); got != want {
		t.Fatalf("EntityText: want=%q got=%q", want, got)
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
