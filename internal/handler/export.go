package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wooogler/swag/internal/event"
	"github.com/wooogler/swag/internal/replay"
	"github.com/wooogler/swag/internal/store"
)

// Export downloads a session timeline as json, csv or md.
func (h *ReplayHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	switch format {
	case "json", "csv", "md", "markdown":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid format. Use json, csv, or md"})
		return
	}

	data, ok := h.load(c)
	if !ok {
		return
	}

	switch format {
	case "json":
		h.exportJSON(c, data)
	case "csv":
		h.exportCSV(c, data)
	default:
		h.exportMarkdown(c, data)
	}
}

func (h *ReplayHandler) exportJSON(c *gin.Context, data *store.ReplayData) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=session-%s.json", data.Session.ID))
	c.JSON(http.StatusOK, gin.H{
		"replay":  data,
		"summary": replay.Summarize(data.Timeline(), len(data.Conversations)),
	})
}

func (h *ReplayHandler) exportCSV(c *gin.Context, data *store.ReplayData) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	writer.Write([]string{"Sequence", "Timestamp", "Source", "Type", "Detail"})

	for _, row := range timelineRows(data) {
		writer.Write([]string{
			row.seq,
			time.UnixMilli(row.ts).UTC().Format(time.RFC3339Nano),
			row.source,
			row.kind,
			row.detail,
		})
	}

	writer.Flush()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=session-%s.csv", data.Session.ID))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (h *ReplayHandler) exportMarkdown(c *gin.Context, data *store.ReplayData) {
	var buf bytes.Buffer
	tl := data.Timeline()
	sum := replay.Summarize(tl, len(data.Conversations))

	buf.WriteString(fmt.Sprintf("# %s\n\n", data.Session.StudentName))
	buf.WriteString(fmt.Sprintf("**Started:** %s\n\n", data.Session.StartedAt.Format("2006-01-02 15:04:05")))

	buf.WriteString("## Summary\n\n")
	buf.WriteString(fmt.Sprintf("- Editor events: %d\n", sum.TotalEditorEvents))
	buf.WriteString(fmt.Sprintf("- External paste attempts: %d\n", sum.ExternalPasteAttempts))
	buf.WriteString(fmt.Sprintf("- Internal pastes: %d\n", sum.InternalPastes))
	buf.WriteString(fmt.Sprintf("- Conversations: %d\n", sum.TotalConversations))
	buf.WriteString(fmt.Sprintf("- Chat messages: %d (%d user, %d assistant)\n", sum.TotalChatMessages, sum.UserMessages, sum.AssistantMessages))
	buf.WriteString(fmt.Sprintf("- Active time: %s\n", (time.Duration(sum.ActiveTimeMs) * time.Millisecond).Round(time.Second)))
	buf.WriteString(fmt.Sprintf("- Words: %d\n\n", sum.WordCount))

	if len(data.IdlePeriods) > 0 {
		buf.WriteString("## Idle periods\n\n")
		for _, p := range data.IdlePeriods {
			buf.WriteString(fmt.Sprintf("- %s: %d min\n", time.UnixMilli(p.Start).UTC().Format("15:04:05"), p.Minutes))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Timeline\n\n")
	for _, row := range timelineRows(data) {
		buf.WriteString(fmt.Sprintf("- `%s` **%s** %s\n", time.UnixMilli(row.ts).UTC().Format("15:04:05"), row.kind, row.detail))
	}

	buf.WriteString("\n## Final text\n\n")
	buf.WriteString(replay.PlainText(finalDocument(tl, data.EndTime)))
	buf.WriteString("\n")

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=session-%s.md", data.Session.ID))
	c.Data(http.StatusOK, "text/markdown", buf.Bytes())
}

type exportRow struct {
	ts     int64
	seq    string
	source string
	kind   string
	detail string
}

// timelineRows merges editor events and chat messages in time order.
func timelineRows(data *store.ReplayData) []exportRow {
	tl := data.Timeline()
	var rows []exportRow
	events := tl.Events()
	msgs := tl.Messages()
	i, j := 0, 0
	for i < len(events) || j < len(msgs) {
		if j >= len(msgs) || (i < len(events) && events[i].Timestamp <= msgs[j].Timestamp) {
			rows = append(rows, eventRow(events[i]))
			i++
			continue
		}
		m := msgs[j]
		rows = append(rows, exportRow{
			ts:     m.Timestamp,
			seq:    strconv.Itoa(m.SequenceNumber),
			source: "chat",
			kind:   m.Role,
			detail: m.Content,
		})
		j++
	}
	return rows
}

func eventRow(e event.Event) exportRow {
	row := exportRow{
		ts:     e.Timestamp,
		seq:    strconv.FormatInt(e.Seq, 10),
		source: "editor",
		kind:   string(e.Kind()),
	}
	switch p := e.Payload.(type) {
	case event.Paste:
		row.detail = p.Content
	case event.Snapshot:
		row.detail = fmt.Sprintf("%d words", replay.WordCount(p.Doc))
	case event.Submission:
		row.detail = fmt.Sprintf("%d words", replay.WordCount(p.Doc))
	}
	return row
}

// finalDocument prefers the latest submission over the document at end.
func finalDocument(tl *replay.Timeline, end int64) event.Document {
	if subs := tl.Submissions(); len(subs) > 0 {
		doc, _ := subs[len(subs)-1].Document()
		return doc
	}
	return tl.DocumentAt(end)
}
