package service

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheetName = "IP Proxies"

// TextFileName 返回文本导出的文件名，如 proxies_2026-08-30.txt
func TextFileName(now time.Time) string {
	return fmt.Sprintf("proxies_%s.txt", now.Format("2006-01-02"))
}

// SheetFileName 返回表格导出的文件名，如 proxies_2026-08-30.xlsx
func SheetFileName(now time.Time) string {
	return fmt.Sprintf("proxies_%s.xlsx", now.Format("2006-01-02"))
}

// ExportText 把代理串渲染为纯文本，每行一条
func ExportText(proxies []string) []byte {
	var buf bytes.Buffer
	for _, proxy := range proxies {
		buf.WriteString(proxy)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ExportSheet 把代理串渲染为 xlsx 工作簿，单列单工作表
func ExportSheet(proxies []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	width := 10.0
	for i, proxy := range proxies {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(exportSheetName, cell, proxy); err != nil {
			return nil, err
		}
		if w := float64(len(proxy)) + 2; w > width {
			width = w
		}
	}
	if err := f.SetColWidth(exportSheetName, "A", "A", width); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportClipboard 把代理串拼接为换行分隔的剪贴板文本
func ExportClipboard(proxies []string) string {
	return strings.Join(proxies, "\n")
}
