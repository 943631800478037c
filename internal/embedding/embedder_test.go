package embedding

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

func TestWords(t *testing.T) {
	got := Words("Domain suspended due to billing - help! billing@example.com")
	want := []string{"domain", "suspended", "due", "to", "billing", "help", "billing", "example", "com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
}

func TestSimpleTokenizer(t *testing.T) {
	ids, mask, types := (&SimpleTokenizer{}).Tokenize("hello world", 8)
	if len(ids) != 8 || len(mask) != 8 || len(types) != 8 {
		t.Fatalf("lengths: %d %d %d", len(ids), len(mask), len(types))
	}
	if ids[0] != clsTokenID || ids[3] != sepTokenID {
		t.Errorf("expected [CLS] w w [SEP], got %v", ids[:4])
	}
	if mask[3] != 1 || mask[4] != 0 {
		t.Errorf("attention mask: %v", mask)
	}
}

func TestHashString_nonNegative(t *testing.T) {
	for _, s := range []string{"", "a", "a very long string that overflows the accumulator many times over"} {
		if HashString(s) < 0 {
			t.Errorf("HashString(%q) is negative", s)
		}
	}
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()
	if e.Dimensions() != 64 || e.ModelName() != "hashing-v1/64" {
		t.Fatalf("dims=%d name=%s", e.Dimensions(), e.ModelName())
	}

	a, err := e.Embed(ctx, "Update WHOIS details")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("len = %d", len(a))
	}
	var norm float64
	for _, v := range a {
		norm += float64(v * v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}

	again, _ := e.Embed(ctx, "update whois DETAILS")
	if l2(a, again) != 0 {
		t.Error("case and punctuation should not change the embedding")
	}

	batch, err := e.EmbedBatch(ctx, []string{"x", "Update WHOIS details"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 || !reflect.DeepEqual(batch[1], a) {
		t.Error("EmbedBatch must preserve input order")
	}
}

func TestHashingEmbedder_emptyText(t *testing.T) {
	v, err := NewHashingEmbedder(8).Embed(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("empty text should embed to zero vector, got %v", v)
		}
	}
}

func TestMockEmbedder_deterministic(t *testing.T) {
	e := NewMockEmbedder(4)
	a, _ := e.Embed(context.Background(), "same")
	b, _ := e.Embed(context.Background(), "same")
	if !reflect.DeepEqual(a, b) {
		t.Error("same text should give same embedding")
	}
	if e.ModelName() != "mock/4" {
		t.Errorf("ModelName = %s", e.ModelName())
	}
}

func TestStaticEmbedder(t *testing.T) {
	e := &StaticEmbedder{Vectors: map[string][]float32{"a": {1, 0}}}
	v, err := e.Embed(context.Background(), "a")
	if err != nil || !reflect.DeepEqual(v, []float32{1, 0}) {
		t.Fatalf("Embed(a) = %v, %v", v, err)
	}
	if _, err := e.Embed(context.Background(), "b"); err == nil {
		t.Error("expected error for unknown text without fallback")
	}
	e.Fallback = []float32{0, 1}
	v, err = e.Embed(context.Background(), "b")
	if err != nil || !reflect.DeepEqual(v, []float32{0, 1}) {
		t.Errorf("fallback: %v, %v", v, err)
	}
	if e.Dimensions() != 2 || e.ModelName() != "static" {
		t.Errorf("dims=%d name=%s", e.Dimensions(), e.ModelName())
	}
}

func TestEmbedBatch_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashingEmbedder(8).EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Error("expected context error")
	}
}

func TestNew_fallsBackToHashing(t *testing.T) {
	e := New(Options{Model: "m", ModelPath: "/nonexistent/model.onnx", Dimensions: 16}, nil)
	defer e.Close()
	if _, ok := e.(*HashingEmbedder); !ok {
		t.Fatalf("expected HashingEmbedder, got %T", e)
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}
