package ingestion

import (
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/llm"
	"github.com/instant-tutor/backend/pkg/logger"
)

// Chunker groups timed transcript segments into fixed duration windows and
// splits each window into overlapping, sentence aligned text chunks.
// Sizes are counted in characters.
type Chunker struct {
	Size            int
	Overlap         int
	MinLength       int
	SegmentDuration float64
}

// Window is the transcript text spoken between Start and End.
type Window struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// TextChunk is one embeddable piece of a window. Index runs across the
// whole media item.
type TextChunk struct {
	Window int
	Index  int
	Start  float64
	End    float64
	Text   string
}

// Chunk windows the segments and splits every window.
func (c Chunker) Chunk(segments []llm.Segment) []TextChunk {
	var chunks []TextChunk
	for _, w := range c.Windows(segments) {
		for _, text := range c.Split(w.Text) {
			chunks = append(chunks, TextChunk{
				Window: w.Index,
				Index:  len(chunks),
				Start:  w.Start,
				End:    w.End,
				Text:   text,
			})
		}
	}
	return chunks
}

// Windows slices the timeline into SegmentDuration windows and collects the
// text of every segment overlapping each one. Untimed transcripts form a
// single window.
func (c Chunker) Windows(segments []llm.Segment) []Window {
	total := 0.0
	for _, s := range segments {
		if s.End > total {
			total = s.End
		}
	}

	if total <= 0 || c.SegmentDuration <= 0 {
		texts := make([]string, 0, len(segments))
		for _, s := range segments {
			texts = append(texts, strings.TrimSpace(s.Text))
		}
		text := strings.TrimSpace(strings.Join(texts, " "))
		if text == "" {
			return nil
		}
		return []Window{{Index: 0, Start: 0, End: total, Text: text}}
	}

	var windows []Window
	for i := 0; float64(i)*c.SegmentDuration < total; i++ {
		start := float64(i) * c.SegmentDuration
		end := start + c.SegmentDuration
		if end > total {
			end = total
		}

		var b strings.Builder
		for _, s := range segments {
			if s.Start < end && s.End > start {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(strings.TrimSpace(s.Text))
			}
		}

		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		windows = append(windows, Window{Index: i, Start: start, End: end, Text: text})
	}
	return windows
}

// Split packs whole sentences into chunks of at most Size characters. Each
// chunk after the first starts with trailing sentences of the previous one
// totalling no more than Overlap characters. Sentences longer than Size are
// cut by character. Chunks shorter than MinLength are dropped.
func (c Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		raw []string
		cur []string
	)

	for _, s := range sentences(text) {
		n := utf8.RuneCountInString(s)

		if n > c.Size {
			if len(cur) > 0 {
				raw = append(raw, strings.Join(cur, " "))
				cur = nil
			}
			raw = append(raw, c.hardSplit(s)...)
			continue
		}

		if len(cur) > 0 && joinedLen(cur)+1+n > c.Size {
			raw = append(raw, strings.Join(cur, " "))
			cur = c.overlapTail(cur)
			for len(cur) > 0 && joinedLen(cur)+1+n > c.Size {
				cur = cur[1:]
			}
		}
		cur = append(cur, s)
	}
	if len(cur) > 0 {
		raw = append(raw, strings.Join(cur, " "))
	}

	chunks := raw[:0]
	for _, ch := range raw {
		ch = strings.TrimSpace(ch)
		if utf8.RuneCountInString(ch) < c.MinLength {
			continue
		}
		chunks = append(chunks, ch)
	}
	return chunks
}

// overlapTail keeps the trailing sentences that fit in Overlap, never the
// whole chunk.
func (c Chunker) overlapTail(cur []string) []string {
	start := len(cur)
	size := 0
	for i := len(cur) - 1; i > 0; i-- {
		n := utf8.RuneCountInString(cur[i])
		if size > 0 {
			n++
		}
		if size+n > c.Overlap {
			break
		}
		size += n
		start = i
	}
	return append([]string(nil), cur[start:]...)
}

func (c Chunker) hardSplit(s string) []string {
	runes := []rune(s)
	step := c.Size - c.Overlap
	if step <= 0 {
		step = c.Size
	}

	var out []string
	for i := 0; i < len(runes); i += step {
		end := i + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	n := len(parts) - 1
	for _, p := range parts {
		n += utf8.RuneCountInString(p)
	}
	return n
}

// sentences segments text with prose, falling back to the whole text.
func sentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Warn("Sentence segmentation failed", zap.Error(err))
		return []string{text}
	}

	var out []string
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}
