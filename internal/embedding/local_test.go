package embedding

import (
	"context"
	"math"
	"testing"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder(128)
	a, err := e.Embed(context.Background(), []string{"machine learning overview"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(context.Background(), []string{"machine learning overview"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestLocalEmbedder_Normalized(t *testing.T) {
	e := NewLocalEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"some words to embed here"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("norm = %f, want 1", norm)
	}
}

func TestLocalEmbedder_SimilarTextScoresHigher(t *testing.T) {
	e := NewLocalEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{
		"what topics are discussed",
		"the topics discussed include ai",
		"completely unrelated cooking recipe",
	})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	dot := func(a, b []float32) float64 {
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	}
	if dot(vecs[0], vecs[1]) <= dot(vecs[0], vecs[2]) {
		t.Fatal("related text should score higher than unrelated text")
	}
}
