package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxPDFText bounds how much extracted text is sent as one message.
const maxPDFText = 8000

// extractPDFText returns the plain text of the PDF at path, with whitespace
// runs collapsed so a worksheet page reads as one problem statement.
func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	text := strings.Join(strings.Fields(buf.String()), " ")
	if text == "" {
		return "", fmt.Errorf("%s contains no extractable text", path)
	}
	if runes := []rune(text); len(runes) > maxPDFText {
		text = string(runes[:maxPDFText])
	}
	return text, nil
}
