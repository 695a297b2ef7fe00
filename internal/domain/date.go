package domain

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

const DateLayout = "2006-01-02"

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, errors.Mark(errors.Wrapf(err, "invalid date %q", s), ErrInvalidInput)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Nights counts whole days between check-in and check-out, never less than one.
func Nights(checkIn, checkOut Date) int {
	days := int(checkOut.Sub(checkIn.Time).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// ValidateStay checks the date range validator tags cannot express.
func ValidateStay(checkIn, checkOut Date) error {
	if checkIn.IsZero() || checkOut.IsZero() {
		return errors.Mark(errors.New("check-in and check-out dates are required"), ErrInvalidInput)
	}
	if !checkOut.After(checkIn.Time) {
		return errors.Mark(errors.New("check-out date must be after check-in date"), ErrInvalidInput)
	}
	return nil
}
