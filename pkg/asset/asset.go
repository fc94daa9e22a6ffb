// Package asset builds short text descriptions for document Asset
// attachments (spec.md §4.4), sniffing mime type and extracting a text
// snippet via format-specific readers — grounded on the teacher's document
// loaders, repurposed as a one-shot "describe" rather than a full RAG
// ingestion pipeline.
package asset

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

const maxSnippet = 500

// Describe returns a short text description of a document asset for use as
// the call's primary-input string, per spec.md §4.4: "when the primary
// input is an Asset with mediaType == document, build a short description".
// Falls back to "<" + mime + " attachment>" (e.g. "<application/pdf
// attachment>") for unreadable/unsupported formats.
func Describe(mime, path string, inline []byte) string {
	switch {
	case strings.Contains(mime, "pdf"):
		if s, err := describePDF(path); err == nil {
			return s
		}
	case strings.Contains(mime, "spreadsheet") || strings.HasSuffix(path, ".xlsx"):
		if s, err := describeXLSX(path); err == nil {
			return s
		}
	case strings.Contains(mime, "wordprocessing") || strings.HasSuffix(path, ".docx"):
		if s, err := describeDOCX(path); err == nil {
			return s
		}
	}
	return fmt.Sprintf("<%s attachment>", mime)
}

func describePDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage() && sb.Len() < maxSnippet; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
	}
	return truncate(sb.String()), nil
}

func describeXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "spreadsheet %q, %d sheet(s), first sheet %q: ", path, len(sheets), sheets[0])
	for _, row := range rows {
		sb.WriteString(strings.Join(row, " "))
		sb.WriteString(" ")
		if sb.Len() >= maxSnippet {
			break
		}
	}
	return truncate(sb.String()), nil
}

func describeDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return truncate(r.Editable().GetContent()), nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxSnippet {
		return s[:maxSnippet] + "..."
	}
	return s
}
