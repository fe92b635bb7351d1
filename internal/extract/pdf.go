package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// bytesPerChar over-reads so multi-byte text still fills the character cap.
const bytesPerChar = 4

func readPDF(path string, maxChars int) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(plain, int64(maxChars*bytesPerChar)))
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	text := strings.Join(strings.Fields(strings.ToValidUTF8(string(data), "")), " ")
	return truncate(text, maxChars), nil
}
