package intake

import "regexp"

// A tag is '#' followed directly by letters of any script, digits or '_'.
var tagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// ExtractTags returns the tags of text in order of appearance, without the
// leading '#'. Case and duplicates are preserved.
func ExtractTags(text string) []string {
	matches := tagRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return tags
}

func tagSpans(text string) [][2]int {
	var spans [][2]int
	for _, loc := range tagRe.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{loc[0], loc[1]})
	}
	return spans
}
