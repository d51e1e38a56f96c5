// Package format drives the generation backend to a complete HTML document.
// A single call may run out of output budget mid-tag, so the driver asks the
// backend to mark completion with an exact sentinel and keeps the
// conversation going until the sentinel appears, the backend goes silent, or
// the turn bound is reached.
package format

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"museflow/internal/genai"
)

// Sentinel is the exact literal the backend is instructed to append when its
// output is complete. Detection is substring equality, never fuzzy.
const Sentinel = "<!-- END_OF_ARTICLE -->"

// DefaultMaxTurns bounds the continuation protocol. Exceeding it yields a
// best-effort partial document, not an error.
const DefaultMaxTurns = 6

// FailureDocument is returned instead of an empty string when the backend
// produced no content at all, so downstream rendering can distinguish
// "failed" from "not yet formatted".
const FailureDocument = `<section style="padding: 24px; text-align: center; color: #999; font-size: 14px;">Formatting failed: no output was produced.</section>`

const systemInstruction = `You are an expert typographer producing RAW HTML for a mobile article editor.
CRITICAL RULES:
1. NO external CSS: no <style> tags, no class names. Every tag carries an inline style attribute.
2. Use <section> for containers and paragraphs, <span> for inline styling. Prefer rgb() colors.
3. Output only the content stream: no <html>, <body>, or markdown code fences.
4. Image placeholder tokens such as [[IMAGE:...]] and [[URL:...]] must be copied through EXACTLY as written, on their own line, never wrapped in any tag and never described or altered.
5. When your output is complete, end it with the exact marker ` + Sentinel + ` and nothing after it.`

const continueInstruction = `Continue EXACTLY from where your previous output stopped. Do not repeat any prior content and do not add commentary. Close all structure you opened, and end with ` + Sentinel + ` when the document is complete.`

// state is the driver's position in the continuation protocol.
type state int

const (
	stateSending state = iota
	stateAwaiting
	stateContinuing
	stateDone
	stateFailedPartial
)

// Backend is the generation client surface the driver needs.
type Backend interface {
	Generate(ctx context.Context, model string, req genai.Request) (genai.Response, error)
}

// Driver assembles a complete formatted document across one or more backend
// turns. Turns are strictly sequential: each continuation request replays the
// full conversation so far.
type Driver struct {
	Backend         Backend
	Model           string
	Temperature     float64
	MaxOutputTokens int
	MaxTurns        int
	Progress        io.Writer
}

// Result is the assembled document plus protocol bookkeeping.
type Result struct {
	HTML     string
	Turns    int
	Complete bool
	Usage    genai.Usage
}

// Format sends the style instruction and document text and runs the
// continuation protocol. Backend errors propagate unretried; truncation is
// the only condition handled here.
func (d *Driver) Format(ctx context.Context, styleInstruction, documentText string) (Result, error) {
	maxTurns := d.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	traceID := uuid.New().String()[:8]
	turns := []genai.Turn{{Role: "user", Text: buildPrompt(styleInstruction, documentText)}}

	var combined strings.Builder
	var usage genai.Usage
	result := Result{}

	current := stateSending
	for turn := 1; current != stateDone && current != stateFailedPartial; turn++ {
		current = stateAwaiting
		resp, err := d.Backend.Generate(ctx, d.Model, genai.Request{
			Turns:           turns,
			SystemText:      systemInstruction,
			Temperature:     d.Temperature,
			MaxOutputTokens: d.MaxOutputTokens,
			TraceID:         traceID,
			TurnNumber:      turn,
		})
		if err != nil {
			return Result{}, fmt.Errorf("generation turn %d: %w", turn, err)
		}

		result.Turns = turn
		accumulateUsage(&usage, resp.Usage)

		if strings.TrimSpace(resp.Text) == "" {
			current = stateFailedPartial
			break
		}

		combined.WriteString(resp.Text)

		switch {
		case strings.Contains(combined.String(), Sentinel):
			current = stateDone
		case turn >= maxTurns:
			current = stateFailedPartial
		default:
			current = stateContinuing
			d.logf("Format: trace=%s turn=%d truncated (finish=%s), continuing\n", traceID, turn, resp.FinishReason)
			turns = append(turns,
				genai.Turn{Role: "model", Text: resp.Text},
				genai.Turn{Role: "user", Text: continueInstruction},
			)
		}
	}

	html := strings.TrimSpace(strings.ReplaceAll(combined.String(), Sentinel, ""))
	if html == "" {
		html = FailureDocument
	}

	result.HTML = html
	result.Complete = current == stateDone
	result.Usage = usage
	if current == stateFailedPartial {
		d.logf("Format: trace=%s gave up after %d turn(s), returning partial document\n", traceID, result.Turns)
	}
	return result, nil
}

func (d *Driver) logf(format string, args ...any) {
	if d.Progress == nil {
		return
	}
	_, _ = fmt.Fprintf(d.Progress, format, args...)
}

func buildPrompt(styleInstruction, documentText string) string {
	var b strings.Builder
	b.WriteString(styleInstruction)
	b.WriteString("\n\nTASK: Format the following text into the requested HTML structure.\n")
	b.WriteString("Copy every [[IMAGE:...]] and [[URL:...]] token through unchanged.\n")
	b.WriteString("INPUT TEXT:\n")
	b.WriteString(documentText)
	b.WriteString("\n\nOUTPUT: Only the HTML code, ending with ")
	b.WriteString(Sentinel)
	return b.String()
}

func accumulateUsage(total *genai.Usage, u genai.Usage) {
	if !u.Available {
		return
	}
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
	total.TotalTokens += u.TotalTokens
	total.Available = true
}
