package validator

import (
	"testing"
)

func TestIsFullName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"two words", "Ana Perez", true},
		{"three words", "Ana Maria Perez", true},
		{"extra spaces", "  Ana   Perez ", true},
		{"single word", "Ana", false},
		{"blank", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFullName(tt.in); got != tt.want {
				t.Errorf("IsFullName(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFullNameTag(t *testing.T) {
	type req struct {
		Name  string `json:"student_name" validate:"required,fullname"`
		Email string `json:"student_email" validate:"required,email"`
	}
	v := New()

	if err := v.Struct(req{Name: "Ana Perez", Email: "ana@example.com"}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	fields := TranslateErrors(v.Struct(req{Name: "Ana", Email: "nope"}))
	if fields["student_name"] != "student_name must contain at least a first and a last name" {
		t.Errorf("student_name message = %q", fields["student_name"])
	}
	if fields["student_email"] == "" {
		t.Error("email error missing")
	}
}
