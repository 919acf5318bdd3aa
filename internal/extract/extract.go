// Package extract turns OCR text into the fields ProcessExtraction takes.
package extract

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	UnknownVendor = "Unknown Vendor"

	// AmountScale is the fixed-point scale of extracted amounts (6 decimals).
	AmountScale = 1_000_000

	// FallbackDueIn replaces a missing or past due date.
	FallbackDueIn = 30 * 24 * time.Hour

	billToMarker = "Bill to"
)

var ErrAmountNotFound = errors.New("extract: no amount due found")

var (
	namePattern   = regexp.MustCompile(`([A-Z][a-z]+\s+[A-Z][a-z]+)`)
	amountPattern = regexp.MustCompile(`\$([0-9]+)\.([0-9]{2})\s+due`)
	datePattern   = regexp.MustCompile(`(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),\s+(\d{4})`)
)

var months = map[string]time.Month{
	"January": time.January, "February": time.February, "March": time.March,
	"April": time.April, "May": time.May, "June": time.June,
	"July": time.July, "August": time.August, "September": time.September,
	"October": time.October, "November": time.November, "December": time.December,
}

type Fields struct {
	Vendor  string
	Amount  uint64
	DueDate int64
	// DueDateFound is false when DueDate is the fallback.
	DueDateFound bool
}

// Parse extracts the vendor, the amount due and the due date from text.
// Only a missing amount is an error; the vendor and due date always have a
// fallback.
func Parse(text string, now time.Time) (Fields, error) {
	amount, err := Amount(text)
	if err != nil {
		return Fields{}, err
	}
	due, found := DueDate(text, now)
	return Fields{
		Vendor:       Vendor(text),
		Amount:       amount,
		DueDate:      due,
		DueDateFound: found,
	}, nil
}

// Vendor returns the first non-empty line after "Bill to" that is not an
// email address, or the first two-word capitalized name in text.
func Vendor(text string) string {
	if pos := strings.Index(text, billToMarker); pos >= 0 {
		lines := strings.Split(text[pos+len(billToMarker):], "\n")
		for _, line := range lines[1:] {
			line = strings.TrimSpace(line)
			if line != "" && !strings.Contains(line, "@") {
				return line
			}
		}
		return UnknownVendor
	}
	if m := namePattern.FindString(text); m != "" {
		return m
	}
	return UnknownVendor
}

// Amount returns the first "$NN.NN due" figure in base units.
func Amount(text string) (uint64, error) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, ErrAmountNotFound
	}
	whole, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil || whole > math.MaxUint64/AmountScale-1 {
		return 0, fmt.Errorf("extract: amount %s.%s out of range", m[1], m[2])
	}
	cents, _ := strconv.ParseUint(m[2], 10, 64)
	return whole*AmountScale + cents*(AmountScale/100), nil
}

// DueDate returns the first full month-name date in text as midnight UTC.
// A missing, invalid or non-future date becomes now + FallbackDueIn.
func DueDate(text string, now time.Time) (int64, bool) {
	fallback := now.Add(FallbackDueIn).Unix()

	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return fallback, false
	}
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	month := months[m[1]]

	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || date.Month() != month {
		return fallback, false
	}
	if date.Unix() <= now.Unix() {
		return fallback, false
	}
	return date.Unix(), true
}
