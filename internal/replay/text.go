package replay

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/wooogler/swag/internal/event"
)

type block struct {
	Type     string          `json:"type"`
	Content  json.RawMessage `json:"content"`
	Children []block         `json:"children"`
}

type inline struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PlainText flattens an editor document into text, one line per block.
// Documents that are not a block array yield "".
func PlainText(doc event.Document) string {
	var blocks []block
	if err := json.Unmarshal(doc, &blocks); err != nil {
		return ""
	}
	var sb strings.Builder
	writeBlocks(&sb, blocks)
	return strings.TrimSpace(sb.String())
}

func writeBlocks(sb *strings.Builder, blocks []block) {
	for _, b := range blocks {
		var runs []inline
		// Tables and other blocks keep non-array content; they carry no text here.
		if len(b.Content) > 0 && json.Unmarshal(b.Content, &runs) == nil {
			for _, r := range runs {
				if r.Type == "text" {
					sb.WriteString(r.Text)
				}
			}
			sb.WriteByte('\n')
		}
		writeBlocks(sb, b.Children)
	}
}

// WordCount counts whitespace separated words in the document text.
func WordCount(doc event.Document) int {
	return len(strings.FieldsFunc(PlainText(doc), unicode.IsSpace))
}
