package token

// Compress normalizes the document text immediately before submission to the
// generation backend: legacy {{IMG:<id>}} aliases become canonical
// [[IMAGE:<id>]] tokens, and every literal {{IMGURL:<url>}} is swapped for a
// registry short key. Inline data URIs can run to tens of kilobytes, so this
// rewrite bounds the prompt length no matter how many images the document
// embeds and lowers the risk of output truncation.
//
// Compress is total and order-preserving: token syntax that does not parse is
// left in place as literal text, and it never fails.
func Compress(text string, reg *Registry) string {
	out := LegacyImagePattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := LegacyImagePattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		return Image(sub[1])
	})

	out = URLLiteralPattern.ReplaceAllStringFunc(out, func(match string) string {
		sub := URLLiteralPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		return ShortKey(reg.GetOrAssignShortKey(sub[1]))
	})

	return out
}
