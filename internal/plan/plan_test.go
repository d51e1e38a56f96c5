package plan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"museflow/internal/genai"
)

type fakeBackend struct {
	planText   string
	coverText  string
	planErr    error
	imageErr   error
	planCalls  int
	coverCalls int
	imageCalls int
}

func (b *fakeBackend) Generate(_ context.Context, model string, req genai.Request) (genai.Response, error) {
	_ = model
	switch {
	case len(req.ResponseModalities) > 0:
		b.imageCalls++
		if b.imageErr != nil {
			return genai.Response{}, b.imageErr
		}
		return genai.Response{
			Images: []genai.InlineImage{{MimeType: "image/png", Data: "QUJD"}},
		}, nil
	case req.ResponseMimeType == "application/json":
		b.planCalls++
		if b.planErr != nil {
			return genai.Response{}, b.planErr
		}
		return genai.Response{Text: b.planText}, nil
	default:
		b.coverCalls++
		return genai.Response{Text: b.coverText}, nil
	}
}

func TestPlanParsesJSON(t *testing.T) {
	backend := &fakeBackend{
		planText: `{"artStyle":"flat vector","images":[{"prompt":"a lighthouse","positionKeyword":"the coast"}]}`,
	}
	p := &Planner{Backend: backend}

	got, err := p.Plan(context.Background(), "an article about the coast")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got.ArtStyle != "flat vector" {
		t.Errorf("ArtStyle = %q, want %q", got.ArtStyle, "flat vector")
	}
	if len(got.Images) != 1 || got.Images[0].PositionKeyword != "the coast" {
		t.Errorf("Images = %+v", got.Images)
	}
}

func TestPlanRepairsMalformedJSON(t *testing.T) {
	// Trailing comma and single quotes are typical model slop.
	backend := &fakeBackend{
		planText: `{'artStyle': 'ink wash', 'images': [{'prompt': 'a bridge', 'positionKeyword': 'river'},]}`,
	}
	p := &Planner{Backend: backend}

	got, err := p.Plan(context.Background(), "text")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got.ArtStyle != "ink wash" || len(got.Images) != 1 {
		t.Errorf("plan = %+v", got)
	}
}

func TestPlanRejectsEmptyAnswer(t *testing.T) {
	p := &Planner{Backend: &fakeBackend{planText: "   "}}
	if _, err := p.Plan(context.Background(), "text"); err == nil {
		t.Fatal("expected error for empty plan")
	}
}

func TestIllustrateInsertsAfterKeywordSection(t *testing.T) {
	backend := &fakeBackend{
		planText: `{"artStyle":"flat vector","images":[{"prompt":"a lighthouse at dusk","positionKeyword":"rocky coast"}]}`,
	}
	p := &Planner{Backend: backend}

	doc := `<section>intro</section><section>the rocky coast at night</section><section>outro</section>`
	got, inserted, err := p.Illustrate(context.Background(), doc, "article text")
	if err != nil {
		t.Fatalf("Illustrate: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("inserted = %d, want 1", inserted)
	}
	if backend.imageCalls != 1 {
		t.Errorf("imageCalls = %d, want 1", backend.imageCalls)
	}

	wantSrc := `src="data:image/png;base64,QUJD"`
	if !strings.Contains(got, wantSrc) {
		t.Errorf("output missing %s:\n%s", wantSrc, got)
	}
	at := strings.Index(got, "rocky coast")
	img := strings.Index(got, "<img")
	outro := strings.Index(got, "outro")
	if !(at < img && img < outro) {
		t.Errorf("illustration not between keyword section and outro:\n%s", got)
	}
}

func TestIllustrateSkipsMissingKeyword(t *testing.T) {
	backend := &fakeBackend{
		planText: `{"artStyle":"flat","images":[{"prompt":"x","positionKeyword":"not in document"}]}`,
	}
	p := &Planner{Backend: backend}

	doc := `<section>body</section>`
	got, inserted, err := p.Illustrate(context.Background(), doc, "text")
	if err != nil {
		t.Fatalf("Illustrate: %v", err)
	}
	if inserted != 0 {
		t.Errorf("inserted = %d, want 0", inserted)
	}
	if got != doc {
		t.Errorf("document modified despite missing keyword:\n%s", got)
	}
}

func TestIllustrateContinuesPastRenderFailure(t *testing.T) {
	backend := &fakeBackend{
		planText: `{"artStyle":"flat","images":[{"prompt":"x","positionKeyword":"body"}]}`,
		imageErr: errors.New("image backend down"),
	}
	p := &Planner{Backend: backend}

	doc := `<section>body</section>`
	got, inserted, err := p.Illustrate(context.Background(), doc, "text")
	if err != nil {
		t.Fatalf("Illustrate: %v", err)
	}
	if inserted != 0 || got != doc {
		t.Errorf("inserted = %d, doc changed = %v", inserted, got != doc)
	}
}

func TestIllustratePropagatesPlanError(t *testing.T) {
	planErr := errors.New("quota exhausted")
	p := &Planner{Backend: &fakeBackend{planErr: planErr}}

	if _, _, err := p.Illustrate(context.Background(), "<section>x</section>", "text"); !errors.Is(err, planErr) {
		t.Fatalf("err = %v, want wrapped %v", err, planErr)
	}
}

func TestCoverPrependsBlock(t *testing.T) {
	backend := &fakeBackend{coverText: "a stormy sea at dawn"}
	p := &Planner{Backend: backend}

	doc := `<section>body</section>`
	got, err := p.Cover(context.Background(), doc, "article text")
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if backend.coverCalls != 1 || backend.imageCalls != 1 {
		t.Errorf("coverCalls = %d, imageCalls = %d, want 1 and 1", backend.coverCalls, backend.imageCalls)
	}
	if !strings.HasPrefix(got, coverPrefix) {
		t.Errorf("cover not at document top:\n%s", got)
	}
	if !strings.Contains(got, `src="data:image/png;base64,QUJD"`) || !strings.Contains(got, `alt="Cover"`) {
		t.Errorf("cover block malformed:\n%s", got)
	}
	if !strings.HasSuffix(got, doc) {
		t.Errorf("body not preserved after cover:\n%s", got)
	}
}

func TestCoverReplacesExistingCover(t *testing.T) {
	p := &Planner{Backend: &fakeBackend{coverText: "desc"}}

	doc := coverBlock("data:image/png;base64,T0xE") + `<section>body</section>`
	got, err := p.Cover(context.Background(), doc, "text")
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if strings.Count(got, coverPrefix) != 1 {
		t.Errorf("expected exactly one cover block:\n%s", got)
	}
	if strings.Contains(got, "T0xE") {
		t.Errorf("stale cover survived:\n%s", got)
	}
}

func TestCoverInsertsInsideGridWrapper(t *testing.T) {
	p := &Planner{Backend: &fakeBackend{coverText: "desc"}}

	open := `<section style="background: repeating-linear-gradient(90deg, rgba(0,0,0,0.05) 0px, transparent 32px);">`
	doc := open + `<section>body</section></section>`
	got, err := p.Cover(context.Background(), doc, "text")
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if !strings.HasPrefix(got, open+coverPrefix) {
		t.Errorf("cover not inside the grid wrapper:\n%s", got)
	}
}

func TestCoverEmptyDescriptionStillRenders(t *testing.T) {
	backend := &fakeBackend{coverText: "   "}
	p := &Planner{Backend: backend}

	got, err := p.Cover(context.Background(), `<section>body</section>`, "text")
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if backend.imageCalls != 1 || !strings.HasPrefix(got, coverPrefix) {
		t.Errorf("fallback description not rendered:\n%s", got)
	}
}

func TestCoverPropagatesRenderFailure(t *testing.T) {
	renderErr := errors.New("image backend down")
	p := &Planner{Backend: &fakeBackend{coverText: "desc", imageErr: renderErr}}

	doc := `<section>body</section>`
	got, err := p.Cover(context.Background(), doc, "text")
	if !errors.Is(err, renderErr) {
		t.Fatalf("err = %v, want wrapped %v", err, renderErr)
	}
	if got != doc {
		t.Errorf("document modified on failure:\n%s", got)
	}
}

func TestInsertAfterKeywordNeedsClosingSection(t *testing.T) {
	if _, ok := insertAfterKeyword("no closing tag keyword here", "keyword", "<x/>"); ok {
		t.Error("expected skip when no </section> follows the keyword")
	}
}
