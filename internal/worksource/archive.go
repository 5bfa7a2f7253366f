package worksource

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// archiveRow is one parsed line of the columnar archive export: a row
// number assigned in file order, an ISO date used for the min-date filter,
// and the origin URL.
type archiveRow struct {
	RowNumber int64
	Date      string
	URL       string
}

// readArchive streams rows from a CSV export of the public archive dataset
// (columns: date, url — a header row is tolerated and skipped), assigning a
// dense row number in file order (starting at 1, so a stored cursor of 0
// means nothing consumed) and dropping any row older than minDate.
// encoding/csv is used directly rather than through a third-party parser:
// no library in the example pack models this bespoke two-column archive
// format any more directly than the standard library's CSV reader.
func readArchive(path, minDate string) ([]archiveRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.FieldsPerRecord = -1

	var rows []archiveRow
	var rowNumber int64
	first := true

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive %s: %w", path, err)
		}
		if len(record) < 2 {
			continue
		}

		if first {
			first = false
			if strings.EqualFold(record[0], "date") || strings.EqualFold(record[0], "created_at") {
				continue
			}
		}

		date, url := record[0], record[1]
		if minDate != "" && date < minDate {
			continue
		}

		rowNumber++
		rows = append(rows, archiveRow{RowNumber: rowNumber, Date: date, URL: url})
	}

	return rows, nil
}
