package validate

import (
	"errors"
	"testing"
	"time"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "010-1234-5678", want: "01012345678"},
		{input: "011 123 4567", want: "0111234567"},
		{input: "123", wantErr: true},
		{input: "02-123-4567", wantErr: true},
		{input: "010-1234-56789", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Phone(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Phone(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Phone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPhoneErrorField(t *testing.T) {
	_, err := Phone("123")
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "phone" || fe.Message == "" {
		t.Errorf("Phone() error = %#v", err)
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name    string
		pw      string
		wantErr bool
	}{
		{name: "valid", pw: "stay1234!"},
		{name: "too short", pw: "a1!", wantErr: true},
		{name: "too long", pw: "abcdefghij1234567890!", wantErr: true},
		{name: "no symbol", pw: "stay12345", wantErr: true},
		{name: "no digit", pw: "stayhere!", wantErr: true},
		{name: "space", pw: "stay 123!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Password(tt.pw); (err != nil) != tt.wantErr {
				t.Errorf("Password(%q) error = %v, wantErr %v", tt.pw, err, tt.wantErr)
			}
		})
	}
}

func TestDateRange(t *testing.T) {
	now := time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		in, out   string
		wantField string
	}{
		{name: "today to tomorrow", in: "2026-10-15", out: "2026-10-16"},
		{name: "past check-in", in: "2026-10-14", out: "2026-10-16", wantField: "checkIn"},
		{name: "same day", in: "2026-10-20", out: "2026-10-20", wantField: "checkOut"},
		{name: "reversed", in: "2026-10-21", out: "2026-10-20", wantField: "checkOut"},
		{name: "malformed", in: "10/20/2026", out: "2026-10-21", wantField: "checkIn"},
		{name: "missing out", in: "2026-10-20", out: "", wantField: "checkOut"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out, err := DateRange(tt.in, tt.out, now)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("DateRange() error = %v", err)
				}
				if !out.After(in) {
					t.Errorf("DateRange() = %v, %v", in, out)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field != tt.wantField {
				t.Errorf("DateRange() error = %v, want field %s", err, tt.wantField)
			}
		})
	}
}

func TestSmallValidators(t *testing.T) {
	if err := Email("guest@stay.example"); err != nil {
		t.Errorf("Email() valid error = %v", err)
	}
	if err := Email("guest"); err == nil {
		t.Error("Email() accepted guest")
	}
	if err := Guests(0, 0); err == nil {
		t.Error("Guests(0) accepted")
	}
	if err := Guests(5, 4); err == nil {
		t.Error("Guests(5, 4) accepted")
	}
	if err := Guests(4, 0); err != nil {
		t.Errorf("Guests(4, 0) error = %v", err)
	}
	if err := Rating(6); err == nil {
		t.Error("Rating(6) accepted")
	}
	if err := ReviewContent("짧아요"); err == nil {
		t.Error("ReviewContent() accepted a short review")
	}
	if err := Nickname("a"); err == nil {
		t.Error("Nickname() accepted one character")
	}
	if err := WishlistName("  "); err == nil {
		t.Error("WishlistName() accepted blank")
	}
}
