// Package ingest parses recipient lists from tabular files. The first row
// must be a header; columns are matched against known synonym sets, and
// anything unmapped becomes a personalization variable.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/coldpost/coldpost/internal/domain"
)

// canonical field names mapped from their header synonyms.
var headerSynonyms = map[string]string{
	"email":        "email",
	"e-mail":       "email",
	"emailaddress": "email",
	"mail":         "email",

	"firstname":  "firstName",
	"fname":      "firstName",
	"given_name": "firstName",
	"name":       "firstName",

	"lastname":    "lastName",
	"lname":       "lastName",
	"surname":     "lastName",
	"family_name": "lastName",

	"company":      "company",
	"organization": "company",
	"org":          "company",
	"business":     "company",
	"employer":     "company",
}

// ImportSummary reports what happened to each row of an import.
type ImportSummary struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
}

// ParseCSV reads a recipient list. Rows without a syntactically valid email
// are rejected and counted; duplicate emails (lowercased) keep the first
// occurrence. Unmapped non-empty columns land in the recipient's variables
// map under their normalized header name.
func ParseCSV(r io.Reader) ([]domain.Recipient, ImportSummary, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ImportSummary{}, fmt.Errorf("empty file: header row required")
	}
	if err != nil {
		return nil, ImportSummary{}, fmt.Errorf("read header: %w", err)
	}

	fields := make([]string, len(header))
	emailCol := -1
	for i, h := range header {
		norm := normalizeHeader(h)
		if canonical, ok := headerSynonyms[norm]; ok {
			fields[i] = canonical
			if canonical == "email" && emailCol == -1 {
				emailCol = i
			}
			continue
		}
		fields[i] = norm
	}
	if emailCol == -1 {
		return nil, ImportSummary{}, fmt.Errorf("no email column found in header %v", header)
	}

	var (
		out     []domain.Recipient
		summary ImportSummary
		seen    = make(map[string]bool)
	)

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, summary, fmt.Errorf("read row %d: %w", summary.Total+2, err)
		}
		summary.Total++

		if emailCol >= len(record) {
			summary.Invalid++
			continue
		}
		email := strings.ToLower(strings.TrimSpace(record[emailCol]))
		if !validEmail(email) {
			summary.Invalid++
			continue
		}
		if seen[email] {
			summary.Duplicates++
			continue
		}
		seen[email] = true

		rcpt := domain.Recipient{Email: email, Variables: map[string]string{}}
		for i, value := range record {
			if i == emailCol || i >= len(fields) {
				continue
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			switch fields[i] {
			case "firstName":
				rcpt.FirstName = value
			case "lastName":
				rcpt.LastName = value
			case "email":
				// A second email-synonym column is just data.
				rcpt.Variables[header[i]] = value
			default:
				rcpt.Variables[fields[i]] = value
			}
		}
		summary.Valid++
		out = append(out, rcpt)
	}
	return out, summary, nil
}

// normalizeHeader matches a header against the synonym sets, lowercased and
// with whitespace/dash/underscore variations collapsed. Headers that match
// nothing come back trimmed but otherwise untouched, and become variable
// map keys.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	lower := strings.ToLower(h)
	squashed := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(lower)
	if _, ok := headerSynonyms[squashed]; ok {
		return squashed
	}
	// Also try with underscores kept, for synonyms like given_name.
	underscored := strings.NewReplacer(" ", "_", "-", "_").Replace(lower)
	if _, ok := headerSynonyms[underscored]; ok {
		return underscored
	}
	return h
}

func validEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
