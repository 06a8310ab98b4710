package corpus

import (
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

func readPDF(ctx context.Context, path string, limit int64) (text string, err error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("corpus: open pdf %q: %w", path, err)
	}
	defer file.Close()
	// the parser panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corpus: extract pdf %q: %v", path, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("corpus: extract pdf %q: %w", path, err)
	}
	data, err := io.ReadAll(io.LimitReader(plain, limit+1))
	if err != nil {
		return "", fmt.Errorf("corpus: read pdf text %q: %w", path, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("corpus: text of %q exceeds maximum size of %d bytes", path, limit)
	}
	return string(data), nil
}
