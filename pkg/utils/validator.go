package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	cellRegex    = regexp.MustCompile(`^(\+27|0)[6-8][0-9]{8}$`)
	wardRegex    = regexp.MustCompile(`^[0-9]{8}$`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// MaxPaymentAmount caps a single membership payment
var MaxPaymentAmount = decimal.NewFromInt(100000)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateCellNumber accepts South African mobile numbers in 0XX or +27XX form
func ValidateCellNumber(cell string) error {
	normalized := strings.ReplaceAll(strings.ReplaceAll(cell, " ", ""), "-", "")
	if !cellRegex.MatchString(normalized) {
		return fmt.Errorf("invalid cell number: %s", cell)
	}
	return nil
}

// ValidateIDNumber validates a 13-digit South African ID number: the embedded
// birth date must exist and the last digit is a Luhn check digit.
func ValidateIDNumber(id string) error {
	if len(id) != 13 {
		return fmt.Errorf("ID number must be 13 digits: %s", id)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("ID number must be numeric: %s", id)
		}
	}
	if _, err := time.Parse("060102", id[:6]); err != nil {
		return fmt.Errorf("ID number has an invalid date of birth: %s", id)
	}

	sum := 0
	for i := 0; i < 12; i++ {
		d := int(id[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	if check != int(id[12]-'0') {
		return fmt.Errorf("ID number checksum mismatch: %s", id)
	}
	return nil
}

// DateOfBirthFromID derives the birth date from an ID number, placing the two
// digit year in the century that does not lie in the future
func DateOfBirthFromID(id string, now time.Time) (time.Time, error) {
	if err := ValidateIDNumber(id); err != nil {
		return time.Time{}, err
	}
	dob, _ := time.Parse("20060102", "20"+id[:6])
	if dob.After(now) {
		dob = dob.AddDate(-100, 0, 0)
	}
	return dob, nil
}

// ValidateWardCode validates an 8-digit municipal ward code
func ValidateWardCode(code string) error {
	if !wardRegex.MatchString(code) {
		return fmt.Errorf("ward code must be 8 digits: %s", code)
	}
	return nil
}

// ValidateAmount validates a payment amount
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %s", amount.StringFixed(2))
	}

	if amount.GreaterThan(MaxPaymentAmount) {
		return fmt.Errorf("amount exceeds maximum limit: %s", amount.StringFixed(2))
	}

	return nil
}

// SanitizeString removes control characters and trims surrounding space
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
