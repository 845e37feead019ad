package frontmatter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_NoFrontmatter_ReturnsBodyOnly(t *testing.T) {
	input := []byte("# Title\n\nHello\n")

	fm, body, had, err := Split(input)
	require.NoError(t, err)
	require.False(t, had)
	require.Empty(t, fm)
	require.Equal(t, input, body)
}

func TestSplit_YAMLFrontmatter_SplitsFrontmatterAndBody(t *testing.T) {
	input := []byte("---\nkey: value\n---\n# Title\n")

	fm, body, had, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("key: value\n"), fm)
	require.Equal(t, []byte("# Title\n"), body)
}

func TestSplit_MissingClosingDelimiter_ReturnsError(t *testing.T) {
	input := []byte("---\nkey: value\n# Title\n")

	_, _, had, err := Split(input)
	require.Error(t, err)
	require.False(t, had)
	require.True(t, errors.Is(err, ErrMissingClosingDelimiter))
}

func TestSplit_CRLF_SplitsFrontmatterAndBody(t *testing.T) {
	input := []byte("---\r\nkey: value\r\n---\r\n# Title\r\n")

	fm, body, had, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("key: value\r\n"), fm)
	require.Equal(t, []byte("# Title\r\n"), body)
}

func TestSplit_EmptyFrontmatterBlock_SplitsAsHadWithEmptyFrontmatter(t *testing.T) {
	input := []byte("---\n---\n# Title\n")

	fm, body, had, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Empty(t, fm)
	require.Equal(t, []byte("# Title\n"), body)
}

func TestSplit_ClosingDelimiterAtEOF_SplitsWithEmptyBody(t *testing.T) {
	input := []byte("---\ntitle: Last\n---")

	fm, body, had, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: Last\n"), fm)
	require.Empty(t, body)
}

func TestDecode_TypedFields(t *testing.T) {
	var meta struct {
		Title  string `yaml:"title"`
		Weight int    `yaml:"weight"`
		Draft  bool   `yaml:"draft"`
	}

	err := Decode([]byte("title: Hello\nweight: 4\ndraft: true\n"), &meta)
	require.NoError(t, err)
	require.Equal(t, "Hello", meta.Title)
	require.Equal(t, 4, meta.Weight)
	require.True(t, meta.Draft)
}

func TestDecode_EmptyInput_IsNoop(t *testing.T) {
	var meta struct {
		Title string `yaml:"title"`
	}
	require.NoError(t, Decode(nil, &meta))
	require.Empty(t, meta.Title)
}

func TestDecode_MalformedYAML_ReturnsError(t *testing.T) {
	var meta map[string]any
	require.Error(t, Decode([]byte("title: [unclosed\n"), &meta))
}

func TestParseYAML_Map(t *testing.T) {
	fields, err := ParseYAML([]byte("title: Hello\ntags:\n  - a\n  - b\n"))
	require.NoError(t, err)
	require.Equal(t, "Hello", fields["title"])
	require.Len(t, fields["tags"], 2)
}

func TestParseYAML_Empty_ReturnsEmptyMap(t *testing.T) {
	fields, err := ParseYAML(nil)
	require.NoError(t, err)
	require.NotNil(t, fields)
	require.Empty(t, fields)
}
