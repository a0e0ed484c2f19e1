package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("same year", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "Mar 15 10:30", formatTime(sameYear))
	})

	t.Run("different year", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "Dec 25  2020", formatTime(diffYear))
	})
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "Hyderabad", formatValue("Hyderabad"))
	assert.Equal(t, "500, 750", formatValue([]string{"500", "750"}))
	assert.Equal(t, "42", formatValue(int64(42)))
}

func TestPrintTable_AlignsColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	printTable(&buf, []string{"LEVEL", "SELECTED"}, [][]string{
		{"academicYear", "2025-26 (#7)"},
		{"zone", ""},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"LEVEL         SELECTED",
		"academicYear  2025-26 (#7)",
		"zone",
	}, lines)
}

func TestPrintKeyValues_SortsKeys(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	printKeyValues(&buf, [2]string{"FIELD", "VALUE"}, map[string]any{
		"zoneId":         int64(5),
		"academicYearId": int64(7),
	})

	out := buf.String()
	assert.Less(t, strings.Index(out, "academicYearId"), strings.Index(out, "zoneId"))
	assert.Contains(t, out, "7")
}

func TestStatusf_Quiet(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cc := &CLIContext{Err: &buf}
	cc.Statusf("hello %s\n", "world")
	assert.Equal(t, "hello world\n", buf.String())

	buf.Reset()
	cc.Flags.Quiet = true
	cc.Statusf("hidden\n")
	assert.Empty(t, buf.String())
}
