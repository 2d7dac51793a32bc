package utils

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Compiled regular expressions for validation
var (
	// 24 hour clock, zero padded
	departureTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

	// Detect HTML/script tags
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
)

// ValidateTrainID validates that a train id is safe and within reasonable limits
func ValidateTrainID(id string) error {
	if id == "" {
		return errors.New("train_id cannot be empty")
	}

	if len(id) > 100 {
		return errors.New("train_id too long (max 100 characters)")
	}

	// ids are passed to the store as bound values; only control
	// characters and markup are refused
	if strings.ContainsFunc(id, unicode.IsControl) || strings.ContainsAny(id, "<>") {
		return errors.New("train_id contains invalid characters")
	}

	return nil
}

// ValidateDepartureTime validates scheduled departure times in HH:MM format
func ValidateDepartureTime(value string) error {
	if value == "" {
		return errors.New("scheduled_departure_time cannot be empty")
	}

	if !departureTimePattern.MatchString(value) {
		return errors.New("invalid time format, use HH:MM")
	}

	return nil
}

// ValidateDate validates date strings in YYYY-MM-DD format
func ValidateDate(date string) error {
	if date == "" {
		return errors.New("trip_date cannot be empty")
	}

	if _, err := time.Parse("2006-01-02", date); err != nil {
		return errors.New("invalid date format, use YYYY-MM-DD")
	}

	return nil
}

// SanitizeInput removes HTML tags and surrounding whitespace
func SanitizeInput(input string) string {
	sanitized := htmlTagPattern.ReplaceAllString(input, "")
	return strings.TrimSpace(sanitized)
}

// ValidateTripParams validates the fields identifying one train departure and
// returns the messages per field. An empty map means the input is valid.
func ValidateTripParams(trainID, departureTime, tripDate string) map[string][]string {
	fieldErrors := make(map[string][]string)

	if err := ValidateTrainID(trainID); err != nil {
		fieldErrors["train_id"] = append(fieldErrors["train_id"], err.Error())
	}

	if err := ValidateDepartureTime(departureTime); err != nil {
		fieldErrors["scheduled_departure_time"] = append(fieldErrors["scheduled_departure_time"], err.Error())
	}

	if err := ValidateDate(tripDate); err != nil {
		fieldErrors["trip_date"] = append(fieldErrors["trip_date"], err.Error())
	}

	return fieldErrors
}
