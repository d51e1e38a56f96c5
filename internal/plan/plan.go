// Package plan lets the model choose illustrations for a finished article.
// A planning call reads the article text and returns an art style plus a few
// insertion points as JSON; an image call then renders each planned prompt and
// the result is spliced into the formatted HTML after the chosen keyword.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	htmlescape "html"
	"io"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"museflow/internal/genai"
)

const (
	// DefaultPlanModel answers the planning call with JSON.
	DefaultPlanModel = "gemini-2.5-flash"
	// DefaultImageModel renders planned prompts as inline image data.
	DefaultImageModel = "gemini-3-pro-image-preview"

	// planSnippetLimit bounds how much article text the planner sees.
	planSnippetLimit = 3000
	// coverSnippetLimit bounds the text behind the cover description call.
	coverSnippetLimit = 1000
)

// PlannedImage is one illustration the model wants inserted.
type PlannedImage struct {
	Prompt string `json:"prompt"`
	// PositionKeyword is a phrase copied from the article text; the image
	// goes after the section that contains it.
	PositionKeyword string `json:"positionKeyword"`
}

// ImagePlan is the planning call's full answer.
type ImagePlan struct {
	ArtStyle string         `json:"artStyle"`
	Images   []PlannedImage `json:"images"`
}

// Backend generates content for a named model.
type Backend interface {
	Generate(ctx context.Context, model string, req genai.Request) (genai.Response, error)
}

// Planner plans and renders illustrations. Zero-value model fields fall back
// to the defaults; a nil Progress discards log output.
type Planner struct {
	Backend    Backend
	PlanModel  string
	ImageModel string
	Progress   io.Writer
}

// Plan asks the model for an art style and 2-3 insertion points. The model
// is asked for JSON, but malformed output is repaired before giving up.
func (p *Planner) Plan(ctx context.Context, articleText string) (ImagePlan, error) {
	snippet := articleSnippet(articleText, planSnippetLimit)

	prompt := `You are an expert Art Director for an online publication.
Analyze the following article text.
1. Determine the tone of the article (e.g. serious, emotional, tech-focused, whimsical).
2. Define a consistent "artStyle" for illustrations that matches this tone (e.g. "Minimalist flat vector with orange accents", "Moody oil painting").
3. Identify 2 or 3 distinct locations where an image would enhance the reading experience.
4. For each location, select a unique "positionKeyword": a short phrase copied EXACTLY from the text that appears immediately before where the image should go.
5. Write a detailed image "prompt" for each location.
Respond with a single JSON object: {"artStyle": string, "images": [{"prompt": string, "positionKeyword": string}]}.

Article text:
` + snippet

	resp, err := p.Backend.Generate(ctx, p.planModel(), genai.Request{
		Turns:            []genai.Turn{{Role: "user", Text: prompt}},
		Temperature:      0.7,
		ResponseMimeType: "application/json",
		TraceID:          "plan",
	})
	if err != nil {
		return ImagePlan{}, fmt.Errorf("request illustration plan: %w", err)
	}

	plan, err := decodePlan(resp.Text)
	if err != nil {
		return ImagePlan{}, err
	}
	return plan, nil
}

// Illustrate plans images for articleText and splices each rendered image
// into doc. Failures on individual images are logged and skipped, so a
// partial result is still returned. The count reports inserted images.
func (p *Planner) Illustrate(ctx context.Context, doc, articleText string) (string, int, error) {
	imagePlan, err := p.Plan(ctx, articleText)
	if err != nil {
		return doc, 0, err
	}

	inserted := 0
	for _, img := range imagePlan.Images {
		fullPrompt := img.Prompt + ". Art Style: " + imagePlan.ArtStyle +
			". Aspect Ratio 4:3. High resolution, detailed."

		src, err := p.renderImage(ctx, fullPrompt, "illustration")
		if err != nil {
			_, _ = fmt.Fprintf(p.progress(), "Plan: render illustration: %v\n", err)
			continue
		}

		next, ok := insertAfterKeyword(doc, img.PositionKeyword, illustrationBlock(src, img.Prompt))
		if !ok {
			_, _ = fmt.Fprintf(p.progress(), "Plan: keyword not found, skipping placement: %q\n", img.PositionKeyword)
			continue
		}
		doc = next
		inserted++
	}
	return doc, inserted, nil
}

// Cover renders a 16:9 cover image for the article and places it at the top
// of doc. An existing cover block is replaced rather than stacked.
func (p *Planner) Cover(ctx context.Context, doc, articleText string) (string, error) {
	desc, err := p.describeCover(ctx, articleText)
	if err != nil {
		return doc, err
	}

	src, err := p.renderImage(ctx, desc+", high quality, artistic, masterpiece. Aspect Ratio 16:9.", "cover")
	if err != nil {
		return doc, fmt.Errorf("render cover: %w", err)
	}
	return insertCover(doc, coverBlock(src)), nil
}

// describeCover asks the plan model for a cover prompt tailored to the
// article. An empty answer falls back to a generic background prompt.
func (p *Planner) describeCover(ctx context.Context, articleText string) (string, error) {
	prompt := `Analyze the following article text and write a detailed, artistic image generation prompt for a cover.
The prompt should describe a scene, mood, lighting, and style.
Return ONLY the English prompt string.

Article text:
` + articleSnippet(articleText, coverSnippetLimit)

	resp, err := p.Backend.Generate(ctx, p.planModel(), genai.Request{
		Turns:   []genai.Turn{{Role: "user", Text: prompt}},
		TraceID: "cover-prompt",
	})
	if err != nil {
		return "", fmt.Errorf("request cover prompt: %w", err)
	}
	desc := strings.TrimSpace(resp.Text)
	if desc == "" {
		return "A beautiful abstract artistic background", nil
	}
	return desc, nil
}

func (p *Planner) renderImage(ctx context.Context, prompt, traceID string) (string, error) {
	resp, err := p.Backend.Generate(ctx, p.imageModel(), genai.Request{
		Turns:              []genai.Turn{{Role: "user", Text: prompt}},
		ResponseModalities: []string{"IMAGE", "TEXT"},
		TraceID:            traceID,
	})
	if err != nil {
		return "", err
	}
	uri, ok := resp.FirstImageDataURI()
	if !ok {
		return "", errors.New("no image data in response")
	}
	return uri, nil
}

func (p *Planner) planModel() string {
	if p.PlanModel != "" {
		return p.PlanModel
	}
	return DefaultPlanModel
}

func (p *Planner) imageModel() string {
	if p.ImageModel != "" {
		return p.ImageModel
	}
	return DefaultImageModel
}

func (p *Planner) progress() io.Writer {
	if p.Progress != nil {
		return p.Progress
	}
	return io.Discard
}

func decodePlan(raw string) (ImagePlan, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ImagePlan{}, errors.New("empty illustration plan")
	}

	var plan ImagePlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return ImagePlan{}, fmt.Errorf("parse illustration plan: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &plan); err != nil {
			return ImagePlan{}, fmt.Errorf("parse repaired illustration plan: %w", err)
		}
	}
	if len(plan.Images) == 0 {
		return ImagePlan{}, errors.New("illustration plan names no images")
	}
	return plan, nil
}

// insertAfterKeyword places block after the first closing </section> that
// follows keyword. Missing keywords and unclosed sections both skip the
// insertion rather than guessing a position.
func insertAfterKeyword(doc, keyword, block string) (string, bool) {
	if keyword == "" {
		return doc, false
	}
	at := strings.Index(doc, keyword)
	if at < 0 {
		return doc, false
	}
	closing := strings.Index(doc[at:], "</section>")
	if closing < 0 {
		return doc, false
	}
	pos := at + closing + len("</section>")
	return doc[:pos] + block + doc[pos:], true
}

const coverPrefix = `<section style="margin-bottom: 24px;"><img`

// gridWrapperOpen matches the opening tag of the grid-background wrapper some
// styles put around the whole document; a cover belongs inside it.
var gridWrapperOpen = regexp.MustCompile(`^<section[^>]*repeating-linear-gradient\([^>]*>`)

// insertCover puts block at the top of the document, inside a full-document
// grid wrapper when one opens the document, replacing any cover already
// sitting there.
func insertCover(doc, block string) string {
	trimmed := strings.TrimLeft(doc, " \t\r\n")
	if open := gridWrapperOpen.FindString(trimmed); open != "" {
		return open + block + dropLeadingCover(trimmed[len(open):])
	}
	return block + dropLeadingCover(trimmed)
}

func dropLeadingCover(s string) string {
	if !strings.HasPrefix(s, coverPrefix) {
		return s
	}
	end := strings.Index(s, "</section>")
	if end < 0 {
		return s
	}
	return s[end+len("</section>"):]
}

func coverBlock(src string) string {
	return `<section style="margin-bottom: 24px;"><img src="` +
		htmlescape.EscapeString(src) +
		`" style="display: block; width: 100%; border-radius: 6px; box-shadow: 0 2px 10px rgba(0,0,0,0.1);" alt="Cover"/></section>`
}

func illustrationBlock(src, caption string) string {
	short := []rune(caption)
	if len(short) > 10 {
		short = append(short[:10], []rune("...")...)
	}

	var b strings.Builder
	b.WriteString(`<section style="margin: 30px 0; text-align: center;"><img src="`)
	b.WriteString(htmlescape.EscapeString(src))
	b.WriteString(`" style="width: 100%; border-radius: 4px; box-shadow: 0 2px 8px rgba(0,0,0,0.05);" alt="Illustration"/>`)
	b.WriteString(`<section style="font-size: 12px; color: #999; margin-top: 6px;">AI illustration: `)
	b.WriteString(htmlescape.EscapeString(string(short)))
	b.WriteString(`</section></section>`)
	return b.String()
}
