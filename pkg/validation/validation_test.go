package validation

import (
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid email", "a@b.com", false},
		{"valid email with subdomain", "user@mail.example.com", false},
		{"empty email", "", true},
		{"invalid format", "invalid-email", true},
		{"missing @", "userexample.com", true},
		{"too long", strings.Repeat("a", 250) + "@example.com", true},
		{"valid with plus", "user+tag@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("x"); err != nil {
		t.Errorf("short passwords are allowed at login: %v", err)
	}
	if err := ValidatePassword(""); err == nil {
		t.Error("empty password must fail")
	}
	if err := ValidatePassword(strings.Repeat("p", 129)); err == nil {
		t.Error("overlong password must fail")
	}
}

func TestValidateNewPassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"secret1", false},
		{"12345", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateNewPassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateNewPassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Ada Lovelace", false},
		{"unicode", "Zoë", false},
		{"blank", "   ", true},
		{"too short", "A", true},
		{"too long", strings.Repeat("n", 51), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID("64f1c2ab9e", "course id"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateID("../admin", "course id"); err == nil {
		t.Error("path traversal id must fail")
	}
	if err := ValidateID("", "course id"); err == nil {
		t.Error("empty id must fail")
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://cdn.example.com/v.mp4"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateURL("ftp://example.com"); err == nil {
		t.Error("ftp scheme must fail")
	}
	if err := ValidateURL("https://"); err == nil {
		t.Error("missing host must fail")
	}
}

func TestValidateRating(t *testing.T) {
	for _, r := range []int{1, 3, 5} {
		if err := ValidateRating(r); err != nil {
			t.Errorf("ValidateRating(%d) = %v", r, err)
		}
	}
	for _, r := range []int{0, 6, -1} {
		if err := ValidateRating(r); err == nil {
			t.Errorf("ValidateRating(%d) should fail", r)
		}
	}
}
