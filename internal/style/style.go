// Package style is the visual style catalog: per-style formatting
// instructions for the generation backend and per-style decoration attributes
// for resolved image blocks. The resolver and the continuation driver consume
// this table as data and never interpret the CSS themselves.
package style

import (
	"fmt"
	"sort"
	"strings"
)

// Style identifies one visual style.
type Style string

const (
	ModernWeChat  Style = "modern"
	TechMagazine  Style = "techmag"
	Zen           Style = "zen"
	NYT           Style = "nyt"
	Minimalist    Style = "minimal"
	Literary      Style = "literary"
	Logic         Style = "logic"
	QbitAI        Style = "qbit"
	DeepBlueBrief Style = "deepblue"
)

// Default is used when the caller does not pick a style.
const Default = ModernWeChat

// Decoration carries the inline-CSS attribute sets applied to a resolved
// image block: the wrapper element and the image element itself.
type Decoration struct {
	WrapperStyle string
	ImageStyle   string
}

type definition struct {
	name        string
	instruction string
	decoration  Decoration
}

var catalog = map[Style]definition{
	ModernWeChat: {
		name: "Knowledge V-Style",
		instruction: `STYLE TARGET: "Knowledge V-Style" (orange accents).
1. Global container: <section style="font-size: 16px; color: rgb(63, 63, 63); line-height: 1.8; letter-spacing: 0.05em; text-align: justify;">
2. Headings: centered numbered section, number in rgb(227, 108, 9) bold 24px above a 16px bold title.
3. Paragraphs: <section style="margin-bottom: 20px; text-align: justify;">
4. Quotes: grey box <section style="margin: 20px 0; padding: 15px; background-color: rgb(242, 242, 242); border-radius: 4px;">
5. Emphasis: <strong style="color: rgb(227, 108, 9);">`,
		decoration: Decoration{
			WrapperStyle: "margin: 30px 0; text-align: center;",
			ImageStyle:   "width: 100%; border-radius: 4px; box-shadow: 0 2px 8px rgba(0,0,0,0.05);",
		},
	},
	TechMagazine: {
		name: "Tech Magazine",
		instruction: `STYLE TARGET: "Tech Magazine".
1. Global container with grid background: <section style="box-sizing: border-box; font-size: 15px; background: repeating-linear-gradient(90deg, rgba(0,0,0,0.05) 0px, rgba(0,0,0,0.05) 1px, transparent 1px, transparent 32px), repeating-linear-gradient(0deg, rgba(0,0,0,0.05) 0px, rgba(0,0,0,0.05) 1px, transparent 1px, transparent 32px) rgba(0,0,0,0.02); border-radius: 12px; padding: 8px; color: rgb(10, 10, 10); line-height: 1.75;">
2. Headings: capsule style, centered, background rgb(198, 110, 73), white text, border-radius 8px.
3. Paragraphs: justified, line-height 2, letter-spacing 0.1em, color rgb(63, 63, 63).
4. Blockquotes: white card with left border rgb(198, 110, 73) and soft shadow.
5. Emphasis: <strong style="color: rgb(198, 110, 73); font-weight: bold;">`,
		decoration: Decoration{
			WrapperStyle: "margin: 24px 0; text-align: center;",
			ImageStyle:   "width: 100%; border-radius: 6px; box-shadow: rgba(0,0,0,0.1) 0px 4px 6px;",
		},
	},
	Zen: {
		name: "Zen Minimalist",
		instruction: `STYLE TARGET: "Zen Minimalist".
1. Global: line-height 2.6, letter-spacing 2px, color rgb(58, 58, 58), font-size 15px.
2. Headings: centered, small bold text with wide letter spacing and sequence numbers (01, 02).
3. Paragraphs: <section style="margin-bottom: 20px; text-align: justify; letter-spacing: 2px; line-height: 2.6;">
4. Keep decoration minimal; generous whitespace between sections.`,
		decoration: Decoration{
			WrapperStyle: "margin: 40px 0; text-align: center;",
			ImageStyle:   "width: 88%; display: inline-block;",
		},
	},
	NYT: {
		name: "New York Times",
		instruction: `STYLE TARGET: "New York Times".
1. Global: <section style="font-family: Georgia, serif; font-size: 17px; line-height: 1.9; color: #1a1a1a;">
2. Headings: <h2 style="font-family: sans-serif; font-weight: 700; margin: 32px 0 12px; font-size: 20px; border-bottom: 1px solid #e2e2e2; padding-bottom: 8px;">
3. Paragraphs: <p style="margin-bottom: 24px;">
4. First paragraph: wrap the first character in a drop cap span (float left, 3.2em).`,
		decoration: Decoration{
			WrapperStyle: "margin: 24px 0;",
			ImageStyle:   "width: 100%;",
		},
	},
	Minimalist: {
		name: "Tech Minimalist",
		instruction: `STYLE TARGET: "Tech Minimalist".
1. Global: <section style="font-size: 16px; line-height: 1.75; color: #24292f;">
2. Headings: <section style="color: #b56a5d; font-size: 18px; font-weight: 600; margin: 30px 0 15px; padding-left: 10px; border-left: 4px solid #b56a5d;">
3. Paragraphs: <section style="margin-bottom: 20px;">
4. Code terms: <span style="background-color: #f6f8fa; padding: 2px 4px; border-radius: 3px; font-family: monospace; font-size: 0.9em;">`,
		decoration: Decoration{
			WrapperStyle: "margin: 24px 0;",
			ImageStyle:   "width: 100%; border-radius: 6px; border: 1px solid #e2e2e2;",
		},
	},
	Logic: {
		name: "Logic Thinking",
		instruction: `STYLE TARGET: "Logic Thinking".
1. Global: font PingFangSC-light, line-height 2, letter-spacing 0.578px, color rgb(63, 63, 63).
2. Opening: L-shape border box for the introduction, 5px solid rgb(227, 108, 9) top and left borders over a rgb(242, 242, 242) panel.
3. Headings: centered, sequence number in rgb(227, 108, 9) bold 36px above a bold 17px title in rgb(62, 62, 62).
4. Paragraphs: <section style="margin-bottom: 15px; text-align: justify; font-size: 15px; line-height: 2; letter-spacing: 0.578px;">
5. Emphasis: <span style="color: rgb(227, 108, 9); font-weight: bold;">
6. Optional footer: centered box with border 2px dotted rgb(192, 200, 209).`,
		decoration: Decoration{
			WrapperStyle: "margin: 30px 0; text-align: center;",
			ImageStyle:   "width: 100%; border-radius: 4px;",
		},
	},
	QbitAI: {
		name: "QbitAI Tech",
		instruction: `STYLE TARGET: "QbitAI Tech News".
1. Global: font Arial, 16px, line-height 2, letter-spacing 1px, color rgb(34, 34, 34), text-align left (not justify).
2. Author/source metadata: only when the text opens with it, wrap those lines in <section style="background-color: rgb(248, 248, 248); border-radius: 3px; margin: 10px 0 30px; padding: 10px; font-size: 14px; line-height: 2; font-weight: 300;">. Never invent author names.
3. Headings: <section style="margin: 40px 0; line-height: 1.5; font-weight: bold; padding-left: 15px; border-left: 6px solid rgb(0, 153, 127); font-size: 20px;">
4. Paragraphs: <p style="margin: 20px 16px; letter-spacing: 1px; word-spacing: 1px; line-height: 2; font-size: 16px;">
5. Emphasis: <strong style="color: rgb(0, 153, 127); font-weight: bold;">`,
		decoration: Decoration{
			WrapperStyle: "margin: 24px 0; text-align: center;",
			ImageStyle:   "width: 100%;",
		},
	},
	DeepBlueBrief: {
		name: "Deep Blue Brief",
		instruction: `STYLE TARGET: "Deep Blue Brief" (deep blue with gold accents).
1. Global: <section style="font-size: 15px; line-height: 1.9; color: rgb(51, 51, 51); letter-spacing: 0.5px;">
2. Headings: numbered bar, bold white text on rgb(7, 98, 210) background with a gold rgb(212, 175, 55) number tab, border-radius 4px, padding 8px 14px.
3. Paragraphs: <section style="margin-bottom: 18px; padding: 12px 14px; background-color: rgb(240, 246, 255); border-radius: 4px; text-align: justify;">
4. Emphasis: <strong style="color: rgb(7, 98, 210); font-weight: bold;">`,
		decoration: Decoration{
			WrapperStyle: "margin: 24px 0; text-align: center;",
			ImageStyle:   "width: 100%; border-radius: 4px; box-shadow: 0 2px 8px rgba(7,98,210,0.12);",
		},
	},
	Literary: {
		name: "Classic Literary",
		instruction: `STYLE TARGET: "Classic Literary".
1. Global: <section style="font-family: 'Kaiti SC', 'STKaiti', serif; font-size: 17px; line-height: 2.0; color: #2c2c2c; text-align: justify; padding: 20px; background-color: #fdfbf7; border: 1px solid #e6e6e6;">
2. Headings: centered, letter-spacing 2px, color #5c7c68.
3. Paragraphs: <p style="text-indent: 2em; margin-bottom: 20px;">`,
		decoration: Decoration{
			WrapperStyle: "margin: 30px 0; text-align: center;",
			ImageStyle:   "width: 92%; border: 1px solid #e6e6e6;",
		},
	},
}

// NotFoundStyle decorates the explicit placeholder block substituted for a
// token whose resource cannot be resolved. A visible box beats a broken-image
// icon.
const NotFoundStyle = "margin: 24px 0; padding: 28px 12px; text-align: center; " +
	"background-color: #f5f5f5; border: 1px dashed #ccc; border-radius: 4px; " +
	"color: #999; font-size: 13px;"

// Parse maps a style identifier to a Style, falling back to Default for the
// empty string.
func Parse(s string) (Style, error) {
	if strings.TrimSpace(s) == "" {
		return Default, nil
	}
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := catalog[st]; !ok {
		return "", fmt.Errorf("unknown style %q (available: %s)", s, strings.Join(Names(), ", "))
	}
	return st, nil
}

// Names lists the available style identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for st := range catalog {
		names = append(names, string(st))
	}
	sort.Strings(names)
	return names
}

// Name returns the human-readable name of a style.
func Name(st Style) string {
	return catalog[st].name
}

// Instruction returns the style-specific prompt block handed to the
// generation backend.
func Instruction(st Style) string {
	def, ok := catalog[st]
	if !ok {
		def = catalog[Default]
	}
	return def.instruction
}

// DecorationFor returns the image block decoration for a style.
func DecorationFor(st Style) Decoration {
	def, ok := catalog[st]
	if !ok {
		def = catalog[Default]
	}
	return def.decoration
}
