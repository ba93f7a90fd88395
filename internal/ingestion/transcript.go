package ingestion

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/instant-tutor/backend/internal/llm"
)

var whitespace = regexp.MustCompile(`\s+`)

// ReadTranscript loads a text source. Subtitle files keep their cue timing;
// HTML and plain text become a single untimed segment.
func ReadTranscript(src *Source) ([]llm.Segment, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var text string
	switch {
	case src.Ext == ".vtt" || src.Ext == ".srt":
		if cues := ParseCues(data); len(cues) > 0 {
			return cues, nil
		}
		text = string(data)
	case src.Ext == ".html" || src.Ext == ".htm" || strings.Contains(src.ContentType, "html"):
		text, err = CleanHTML(data)
		if err != nil {
			return nil, err
		}
	default:
		text = string(data)
	}

	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if text == "" {
		return nil, fmt.Errorf("no text extracted from %s", src.Locator)
	}
	return []llm.Segment{{Start: 0, End: 0, Text: text}}, nil
}

// CleanHTML returns the visible body text of an HTML page.
func CleanHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var parts []string
	doc.Find("body").Find("h1, h2, h3, h4, p, li, pre, td").Each(func(i int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})

	text := strings.Join(parts, "\n")
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " ")), nil
}

// ParseCues reads WebVTT or SRT cues into timed segments.
func ParseCues(data []byte) []llm.Segment {
	var (
		segments []llm.Segment
		current  *llm.Segment
		lines    []string
	)

	flush := func() {
		if current != nil {
			current.Text = strings.TrimSpace(strings.Join(lines, " "))
			if current.Text != "" {
				segments = append(segments, *current)
			}
		}
		current = nil
		lines = lines[:0]
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.Contains(line, "-->") {
			flush()
			parts := strings.SplitN(line, "-->", 2)
			endFields := strings.Fields(parts[1])
			if len(endFields) == 0 {
				continue
			}
			start, ok1 := parseCueTime(parts[0])
			end, ok2 := parseCueTime(endFields[0])
			if ok1 && ok2 {
				current = &llm.Segment{Start: start, End: end}
			}
			continue
		}

		if line == "" {
			flush()
			continue
		}
		if current != nil {
			lines = append(lines, stripCueTags(line))
		}
	}
	flush()

	return segments
}

var cueTag = regexp.MustCompile(`<[^>]+>`)

func stripCueTags(line string) string {
	return cueTag.ReplaceAllString(line, "")
}

// parseCueTime accepts hh:mm:ss.mmm, mm:ss.mmm and the SRT comma form.
func parseCueTime(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	total := 0.0
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		if i < len(parts)-1 {
			total = (total + v) * 60
		} else {
			total += v
		}
	}
	return total, true
}
