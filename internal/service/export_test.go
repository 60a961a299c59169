package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportText(t *testing.T) {
	body := ExportText([]string{"1.1.1.1:8080:u:p", "2.2.2.2:8080:u:p"})
	assert.Equal(t, "1.1.1.1:8080:u:p\n2.2.2.2:8080:u:p\n", string(body))

	assert.Empty(t, ExportText(nil))
}

func TestExportSheet(t *testing.T) {
	proxies := []string{"1.1.1.1:8080:u:p", "2.2.2.2:8080:username:password"}
	body, err := ExportSheet(proxies)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"IP Proxies"}, f.GetSheetList())

	rows, err := f.GetRows("IP Proxies")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, proxies[0], rows[0][0])
	assert.Equal(t, proxies[1], rows[1][0])
}

func TestExportClipboard(t *testing.T) {
	assert.Equal(t, "a\nb", ExportClipboard([]string{"a", "b"}))
	assert.Equal(t, "", ExportClipboard(nil))
}

func TestExportFileNames(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 4, 5, 0, time.Local)
	assert.Equal(t, "proxies_2026-08-30.txt", TextFileName(now))
	assert.Equal(t, "proxies_2026-08-30.xlsx", SheetFileName(now))
}
