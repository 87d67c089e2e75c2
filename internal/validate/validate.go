// Package validate rejects malformed input before any request is sent.
// Messages are shown to the user as-is.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const DateLayout = "2006-01-02"

type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Phone strips everything but digits and accepts 10 or 11 digit mobile numbers.
func Phone(input string) (string, error) {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) < 10 || len(digits) > 11 || !strings.HasPrefix(digits, "01") {
		return "", &FieldError{Field: "phone", Message: "올바른 휴대폰 번호를 입력해주세요."}
	}
	return digits, nil
}

func Email(input string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(input))
	if err != nil || addr.Address != strings.TrimSpace(input) || !strings.Contains(addr.Address, ".") {
		return &FieldError{Field: "email", Message: "올바른 이메일 주소를 입력해주세요."}
	}
	return nil
}

// Password requires 8-20 characters mixing letters, digits and symbols.
func Password(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < 8 || n > 20 {
		return &FieldError{Field: "password", Message: "비밀번호는 8자 이상 20자 이하로 입력해주세요."}
	}

	var letter, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsSpace(r):
			return &FieldError{Field: "password", Message: "비밀번호에 공백을 사용할 수 없습니다."}
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if !letter || !digit || !special {
		return &FieldError{Field: "password", Message: "비밀번호는 영문, 숫자, 특수문자를 모두 포함해야 합니다."}
	}
	return nil
}

// DateRange parses a YYYY-MM-DD stay. Check-in may not be before the day of
// now and check-out must come after check-in.
func DateRange(checkIn, checkOut string, now time.Time) (time.Time, time.Time, error) {
	in, err := time.ParseInLocation(DateLayout, checkIn, now.Location())
	if err != nil {
		return time.Time{}, time.Time{}, &FieldError{Field: "checkIn", Message: "체크인 날짜를 선택해주세요."}
	}
	out, err := time.ParseInLocation(DateLayout, checkOut, now.Location())
	if err != nil {
		return time.Time{}, time.Time{}, &FieldError{Field: "checkOut", Message: "체크아웃 날짜를 선택해주세요."}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if in.Before(today) {
		return time.Time{}, time.Time{}, &FieldError{Field: "checkIn", Message: "지난 날짜는 선택할 수 없습니다."}
	}
	if !out.After(in) {
		return time.Time{}, time.Time{}, &FieldError{Field: "checkOut", Message: "체크아웃은 체크인 이후 날짜여야 합니다."}
	}
	return in, out, nil
}

// Guests checks a head count. max <= 0 means no upper bound.
func Guests(n, max int) error {
	if n < 1 {
		return &FieldError{Field: "guests", Message: "인원은 1명 이상이어야 합니다."}
	}
	if max > 0 && n > max {
		return &FieldError{Field: "guests", Message: fmt.Sprintf("최대 %d명까지 예약할 수 있습니다.", max)}
	}
	return nil
}

func Rating(n int) error {
	if n < 1 || n > 5 {
		return &FieldError{Field: "rating", Message: "별점은 1점부터 5점까지 선택할 수 있습니다."}
	}
	return nil
}

func ReviewContent(s string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n < 10 || n > 1000 {
		return &FieldError{Field: "content", Message: "리뷰는 10자 이상 1000자 이하로 작성해주세요."}
	}
	return nil
}

func Nickname(s string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n < 2 || n > 12 {
		return &FieldError{Field: "nickname", Message: "닉네임은 2자 이상 12자 이하로 입력해주세요."}
	}
	return nil
}

func WishlistName(s string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n == 0 || n > 30 {
		return &FieldError{Field: "name", Message: "위시리스트 이름은 1자 이상 30자 이하로 입력해주세요."}
	}
	return nil
}
