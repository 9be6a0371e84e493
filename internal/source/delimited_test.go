package source

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/recordimport/internal/core"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		delim rune
		want  []string
	}{
		{
			name:  "quoted delimiter kept together",
			line:  `Sachin,,M,"Maths,Science,English",Need to improve in these subjects.`,
			delim: ',',
			want:  []string{"Sachin", "", "M", `"Maths,Science,English"`, "Need to improve in these subjects."},
		},
		{
			name:  "space inside quotes preserved",
			line:  `"New Leaf, Same Page "`,
			delim: ',',
			want:  []string{`"New Leaf, Same Page "`},
		},
		{
			name:  "space after delimiter trimmed",
			line:  `a, b ,  c`,
			delim: ',',
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "apostrophe inside a value",
			line:  `O'Brien,'x,y'`,
			delim: ',',
			want:  []string{"O'Brien", "'x,y'"},
		},
		{
			name:  "tab delimited",
			line:  "1\t\"a\tb\"\t@<id>@4@<id>@",
			delim: '\t',
			want:  []string{"1", "\"a\tb\"", "@<id>@4@<id>@"},
		},
		{
			name:  "trailing delimiter",
			line:  "a,b,",
			delim: ',',
			want:  []string{"a", "b", ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.line, tt.delim))
		})
	}
}

func readAll(t *testing.T, src core.GroupSource) ([]*core.RawGroup, error) {
	t.Helper()
	var groups []*core.RawGroup
	for {
		g, err := src.Next()
		if errors.Is(err, io.EOF) {
			return groups, nil
		}
		if err != nil {
			return groups, err
		}
		groups = append(groups, g)
	}
}

func TestDelimited_Groups(t *testing.T) {
	input := "\"name\", age, tag, tag\r\n" +
		"Jeff, 30, a, b\r\n" +
		"\r\n" +
		"\"Ashleah\", \"31\", , c\r\n"

	groups, err := readAll(t, NewDelimited("people.csv", strings.NewReader(input), DelimitedOptions{}))
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []string{"name", "age", "tag"}, groups[0].Fields())
	assert.Equal(t, []string{"Jeff"}, groups[0].Values("name"))
	assert.Equal(t, []string{"30"}, groups[0].Values("age"))
	assert.Equal(t, []string{"a", "b"}, groups[0].Values("tag"))

	assert.Equal(t, []string{`"Ashleah"`}, groups[1].Values("name"))
	assert.Equal(t, []string{`"31"`}, groups[1].Values("age"))
	assert.Equal(t, []string{"", "c"}, groups[1].Values("tag"))
}

func TestDelimited_FixedHeader(t *testing.T) {
	src := NewDelimited("x", strings.NewReader("1|2\n3|4\n"), DelimitedOptions{
		Delimiter: '|',
		Header:    []string{"a", "b"},
	})
	groups, err := readAll(t, src)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"3"}, groups[1].Values("a"))
}

func TestDelimited_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"too few values", "a,b,c\n1,2,3\n1,2\n", 3},
		{"too many values", "a,b\n\n1,2,3\n", 3},
		{"unnamed column", "a,,c\n1,2,3\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readAll(t, NewDelimited("bad.csv", strings.NewReader(tt.input), DelimitedOptions{}))
			var mge *core.MalformedGroupError
			require.ErrorAs(t, err, &mge)
			assert.Equal(t, "bad.csv", mge.Source)
			assert.Equal(t, tt.wantLine, mge.Line)
		})
	}
}

func TestDelimited_EmptyInput(t *testing.T) {
	groups, err := readAll(t, NewDelimited("empty.csv", strings.NewReader("\n\n"), DelimitedOptions{}))
	require.NoError(t, err)
	assert.Empty(t, groups)
}
