package source

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// workbook builds an xlsx file with rows written to sheet, creating the
// sheet when it is not the default one.
func workbook(t *testing.T, sheet string, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet == "" {
		sheet = f.GetSheetName(0)
	} else {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestXLSX_NamedSheet(t *testing.T) {
	buf := workbook(t, "People",
		[]any{" ssn ", "name"},
		[]any{123, "@<ssn>@456@<ssn>@"},
	)

	x, err := NewXLSX("people.xlsx", buf, "People")
	require.NoError(t, err)
	defer x.Close()

	groups, err := readAll(t, x)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"ssn", "name"}, groups[0].Fields())
	assert.Equal(t, []string{"123"}, groups[0].Values("ssn"))
	assert.Equal(t, []string{"@<ssn>@456@<ssn>@"}, groups[0].Values("name"))
}

func TestXLSX_MissingSheet(t *testing.T) {
	buf := workbook(t, "", []any{"a"})

	_, err := NewXLSX("book.xlsx", buf, "Nope")
	assert.ErrorContains(t, err, `open sheet "Nope" in book.xlsx`)
}

func TestXLSX_NotAWorkbook(t *testing.T) {
	_, err := NewXLSX("fake.xlsx", bytes.NewBufferString("id,name\n"), "")
	assert.ErrorContains(t, err, "open workbook fake.xlsx")
}

func TestXLSX_TooManyCells(t *testing.T) {
	buf := workbook(t, "",
		[]any{"a", "b"},
		[]any{1, 2},
		[]any{3, 4, 5},
	)

	x, err := NewXLSX("wide.xlsx", buf, "")
	require.NoError(t, err)
	defer x.Close()

	groups, err := readAll(t, x)
	require.Len(t, groups, 1)

	var malformed *core.MalformedGroupError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "wide.xlsx", malformed.Source)
	assert.Equal(t, 3, malformed.Line)
	assert.True(t, core.IsMalformed(err))
}

func TestXLSX_BlankRowsSkipped(t *testing.T) {
	buf := workbook(t, "",
		[]any{"", ""},
		[]any{"k"},
		[]any{"  "},
		[]any{"v"},
	)

	x, err := NewXLSX("gaps.xlsx", buf, "")
	require.NoError(t, err)
	defer x.Close()

	groups, err := readAll(t, x)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"v"}, groups[0].Values("k"))
}
