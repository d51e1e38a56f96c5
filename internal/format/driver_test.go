package format

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"museflow/internal/genai"
)

// splittingBackend returns pieces one per call, appending the sentinel to the
// final piece, and records the conversations it was shown.
type splittingBackend struct {
	pieces        []string
	calls         int
	conversations [][]genai.Turn
}

func (b *splittingBackend) Generate(_ context.Context, _ string, req genai.Request) (genai.Response, error) {
	b.conversations = append(b.conversations, req.Turns)
	if b.calls >= len(b.pieces) {
		return genai.Response{Text: ""}, nil
	}
	piece := b.pieces[b.calls]
	b.calls++
	text := piece
	if b.calls == len(b.pieces) {
		text += Sentinel
	} else {
		return genai.Response{Text: text, FinishReason: "MAX_TOKENS"}, nil
	}
	return genai.Response{Text: text, FinishReason: "STOP"}, nil
}

func splitIntoN(s string, n int) []string {
	if n <= 1 {
		return []string{s}
	}
	size := (len(s) + n - 1) / n
	var pieces []string
	for start := 0; start < len(s); start += size {
		end := start + size
		if end > len(s) {
			end = len(s)
		}
		pieces = append(pieces, s[start:end])
	}
	return pieces
}

func TestFormatReassemblesArbitrarySplits(t *testing.T) {
	document := `<section style="margin:0"><p>one</p><p>two</p><p>three</p></section>`

	for n := 1; n <= DefaultMaxTurns; n++ {
		t.Run(fmt.Sprintf("splits=%d", n), func(t *testing.T) {
			backend := &splittingBackend{pieces: splitIntoN(document, n)}
			driver := &Driver{Backend: backend, Model: "m"}

			result, err := driver.Format(context.Background(), "style", "text")
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if result.HTML != document {
				t.Fatalf("combined output = %q, want %q", result.HTML, document)
			}
			if !result.Complete {
				t.Fatal("result not marked complete")
			}
			if result.Turns != len(backend.pieces) {
				t.Fatalf("turns = %d, want %d", result.Turns, len(backend.pieces))
			}
		})
	}
}

func TestFormatScenarioTwoPartContinuation(t *testing.T) {
	backend := &splittingBackend{pieces: []string{"<section>partial", "...rest</section>"}}
	driver := &Driver{Backend: backend, Model: "m"}

	result, err := driver.Format(context.Background(), "style", "text")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if result.HTML != "<section>partial...rest</section>" {
		t.Fatalf("HTML = %q", result.HTML)
	}
	if strings.Contains(result.HTML, Sentinel) {
		t.Fatal("sentinel survived into output")
	}

	// The continuation request must replay the partial response as a prior
	// model turn followed by a fresh instruction turn.
	second := backend.conversations[1]
	if len(second) != 3 {
		t.Fatalf("continuation conversation has %d turns, want 3", len(second))
	}
	if second[1].Role != "model" || second[1].Text != "<section>partial" {
		t.Fatalf("prior response not replayed: %+v", second[1])
	}
	if second[2].Role != "user" || !strings.Contains(second[2].Text, "Continue EXACTLY") {
		t.Fatalf("missing continuation instruction: %+v", second[2])
	}
}

type silentBackend struct{}

func (silentBackend) Generate(context.Context, string, genai.Request) (genai.Response, error) {
	return genai.Response{Text: ""}, nil
}

func TestFormatEmptyResponseYieldsFailureDocument(t *testing.T) {
	driver := &Driver{Backend: silentBackend{}, Model: "m"}

	result, err := driver.Format(context.Background(), "style", "text")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if result.HTML != FailureDocument {
		t.Fatalf("HTML = %q, want failure document", result.HTML)
	}
	if result.Complete {
		t.Fatal("empty run marked complete")
	}
}

type chattyBackend struct{ calls int }

func (b *chattyBackend) Generate(context.Context, string, genai.Request) (genai.Response, error) {
	b.calls++
	return genai.Response{Text: fmt.Sprintf("<p>part %d</p>", b.calls), FinishReason: "MAX_TOKENS"}, nil
}

func TestFormatStopsAtTurnBound(t *testing.T) {
	backend := &chattyBackend{}
	driver := &Driver{Backend: backend, Model: "m", MaxTurns: 3}

	result, err := driver.Format(context.Background(), "style", "text")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if backend.calls != 3 {
		t.Fatalf("backend called %d times, want 3", backend.calls)
	}
	if result.Complete {
		t.Fatal("bounded partial result marked complete")
	}
	if result.HTML != "<p>part 1</p><p>part 2</p><p>part 3</p>" {
		t.Fatalf("HTML = %q", result.HTML)
	}
}

type failingBackend struct{ calls int }

var errBackend = errors.New("backend exploded")

func (b *failingBackend) Generate(context.Context, string, genai.Request) (genai.Response, error) {
	b.calls++
	return genai.Response{}, errBackend
}

func TestFormatPropagatesBackendErrors(t *testing.T) {
	backend := &failingBackend{}
	driver := &Driver{Backend: backend, Model: "m"}

	_, err := driver.Format(context.Background(), "style", "text")
	if !errors.Is(err, errBackend) {
		t.Fatalf("error = %v, want wrapped backend error", err)
	}
	if backend.calls != 1 {
		t.Fatalf("driver retried a hard error: %d calls", backend.calls)
	}
}
