package lexical

import (
	"context"
	"math"
	"testing"
)

func TestScorePrefersChunkCoveringQuery(t *testing.T) {
	r := New()
	ctx := context.Background()
	query := "¿Qué funciones tiene el OCAD en la aprobación de proyectos?"

	relevant, err := r.Score(ctx, query, "El OCAD tiene funciones de viabilización y aprobación de proyectos de inversión.")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	unrelated, err := r.Score(ctx, query, "La rendición de cuentas se publica en el portal institucional.")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if relevant <= unrelated {
		t.Fatalf("expected relevant chunk to score higher: %v <= %v", relevant, unrelated)
	}
	if relevant < 0 || relevant > 1 {
		t.Fatalf("score out of range: %v", relevant)
	}
}

func TestScoreIdenticalTextIsOne(t *testing.T) {
	score, err := New().Score(context.Background(), "aprobación de proyectos", "Aprobación de proyectos")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Fatalf("expected 1, got %v", score)
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	r := New()
	for _, tc := range [][2]string{{"", "texto"}, {"texto", ""}, {"de la", "de la"}} {
		score, err := r.Score(context.Background(), tc[0], tc[1])
		if err != nil || score != 0 {
			t.Fatalf("Score(%q, %q) = %v, %v; want 0", tc[0], tc[1], score, err)
		}
	}
}

func TestScoreHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Score(ctx, "a", "b"); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestTokenizeKeepsAccentsAndDropsStopwords(t *testing.T) {
	got := tokenize("¿Qué dice el Artículo 4.5 sobre la sesión?")
	want := []string{"dice", "artículo", "4", "5", "sesión"}
	if len(got) != len(want) {
		t.Fatalf("tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokenize() = %v, want %v", got, want)
		}
	}
}
