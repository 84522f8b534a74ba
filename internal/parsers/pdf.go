package parsers

import (
	"strings"

	"baborette-reconciliation-service/pkg/errors"

	"github.com/ledongthuc/pdf"
)

// ExtractTextLines pulls the text layer out of a mapa PDF, one line per
// visual row. Scanned documents without a text layer come back empty and
// surface later as an empty-document parse error.
func ExtractTextLines(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileUnreadable, path, err)
	}
	defer f.Close()

	var lines []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, err).
				WithContext("page", pageNum)
		}

		for _, row := range rows {
			var sb strings.Builder
			for _, word := range row.Content {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(word.S)
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
	}

	return lines, nil
}
