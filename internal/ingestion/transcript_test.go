package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instant-tutor/backend/internal/kg/builder"
	"github.com/instant-tutor/backend/internal/llm"
)

func writeFile(t *testing.T, name, content string) *Source {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return &Source{Locator: p, Path: p, Ext: filepath.Ext(name)}
}

func TestReadTranscriptVTT(t *testing.T) {
	src := writeFile(t, "lecture.vtt", `WEBVTT

00:00:01.000 --> 00:00:04.500
Welcome to <b>calculus</b>.

00:01:02.000 --> 00:01:10.250 align:start
Today we study
derivatives.
`)

	segments, err := ReadTranscript(src)
	require.NoError(t, err)
	assert.Equal(t, []llm.Segment{
		{Start: 1, End: 4.5, Text: "Welcome to calculus."},
		{Start: 62, End: 70.25, Text: "Today we study derivatives."},
	}, segments)
}

func TestReadTranscriptSRT(t *testing.T) {
	src := writeFile(t, "lecture.srt", "1\n00:00:00,000 --> 00:00:02,000\nHello\n\n2\n00:00:02,000 --> 00:00:05,000\nWorld\n")

	segments, err := ReadTranscript(src)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "World", segments[1].Text)
	assert.Equal(t, 5.0, segments[1].End)
}

func TestReadTranscriptHTML(t *testing.T) {
	src := writeFile(t, "notes.html", `<html><head><title>x</title><script>var a = 1;</script></head>
<body><nav>menu</nav><h1>Limits</h1><p>A limit describes   behaviour near a point.</p><footer>copyright</footer></body></html>`)

	segments, err := ReadTranscript(src)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "Limits A limit describes behaviour near a point.", segments[0].Text)
	assert.Zero(t, segments[0].Start)
	assert.Zero(t, segments[0].End)
}

func TestReadTranscriptEmpty(t *testing.T) {
	src := writeFile(t, "empty.txt", "   \n  ")
	_, err := ReadTranscript(src)
	assert.Error(t, err)
}

func TestSourceIsTranscript(t *testing.T) {
	assert.True(t, (&Source{Ext: ".srt"}).IsTranscript())
	assert.True(t, (&Source{Ext: "", ContentType: "text/html; charset=utf-8"}).IsTranscript())
	assert.False(t, (&Source{Ext: ".mp4", ContentType: "video/mp4"}).IsTranscript())
}

func TestParseCueTime(t *testing.T) {
	v, ok := parseCueTime("01:02:03.5")
	require.True(t, ok)
	assert.Equal(t, 3723.5, v)

	_, ok = parseCueTime("abc")
	assert.False(t, ok)
}

func TestLabelTopic(t *testing.T) {
	text := "The matrix stores numbers. We multiply the matrix by a vector, " +
		"and every matrix has a rank."
	assert.Equal(t, "Matrix", LabelTopic(text))

	assert.Equal(t, builder.DefaultTopic, LabelTopic(""))
	assert.Equal(t, builder.DefaultTopic, LabelTopic("it is so"))
}
