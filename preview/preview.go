// Package preview renders annotated HTML as terminal-readable Markdown.
// The input is sanitised first: preview output is meant for a terminal and
// must not carry scripts or event handlers from arbitrary pages.
package preview

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.UGCPolicy()

var md = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown sanitises rawHTML and converts it to Markdown.
func Markdown(rawHTML string) (string, error) {
	return md.ConvertString(policy.Sanitize(rawHTML))
}
