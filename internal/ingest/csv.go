// Package ingest parses uploaded transaction CSVs. Real uploads come
// from exported spreadsheets in every dialect imaginable, so parsing
// is preceded by a sanitizer that repairs the common damage before the
// CSV reader sees the bytes.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	// ErrEmpty means the upload held no usable transaction rows.
	ErrEmpty = errors.New("csv contains no transaction rows")

	// ErrMissingColumns means a required header was absent.
	ErrMissingColumns = errors.New("missing required columns")
)

var requiredColumns = []string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"}

// timestampLayouts are tried in order per cell.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// Sanitize repairs common CSV export damage: a UTF-8 BOM, Windows or
// bare-CR line endings, blank lines, rows wrapped whole in quotes, and
// semicolon or tab delimiters. The delimiter decision comes from the
// header row alone.
func Sanitize(raw string) string {
	raw = strings.TrimPrefix(raw, "\ufeff")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return raw
	}

	// Strip wrapping quotes only when every line carries them, so
	// legitimately quoted values stay intact.
	allWrapped := true
	for _, l := range lines {
		if len(l) < 2 || !strings.HasPrefix(l, `"`) || !strings.HasSuffix(l, `"`) {
			allWrapped = false
			break
		}
	}
	if allWrapped {
		for i, l := range lines {
			lines[i] = l[1 : len(l)-1]
		}
	}

	header := lines[0]
	commas := strings.Count(header, ",")
	semicolons := strings.Count(header, ";")
	tabs := strings.Count(header, "\t")

	switch {
	case semicolons > commas && semicolons >= tabs:
		for i, l := range lines {
			lines[i] = strings.ReplaceAll(l, ";", ",")
		}
	case tabs > commas:
		for i, l := range lines {
			lines[i] = strings.ReplaceAll(l, "\t", ",")
		}
	}

	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

// Parse sanitizes and parses an uploaded CSV into transactions.
// Column names are case-insensitive. Invalid amounts coerce to 0;
// rows with unparsable timestamps are dropped. Returns ErrEmpty when
// nothing survives and ErrMissingColumns when the header is short.
func Parse(r io.Reader) ([]domain.Transaction, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(Sanitize(string(raw))))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse csv: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var txns []domain.Transaction
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not parse csv row: %w", err)
		}
		rows++

		ts, ok := parseTimestamp(field(record, col["timestamp"]))
		if !ok {
			continue
		}

		amount, err := strconv.ParseFloat(strings.TrimSpace(field(record, col["amount"])), 64)
		if err != nil {
			amount = 0
		}

		txns = append(txns, domain.Transaction{
			ID:         strings.TrimSpace(field(record, col["transaction_id"])),
			SenderID:   strings.TrimSpace(field(record, col["sender_id"])),
			ReceiverID: strings.TrimSpace(field(record, col["receiver_id"])),
			Amount:     amount,
			Timestamp:  ts,
		})
	}

	if rows == 0 || len(txns) == 0 {
		return nil, ErrEmpty
	}
	return txns, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
