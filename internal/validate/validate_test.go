package validate

import (
	"testing"

	"github.com/example/glowbeauty/internal/apperr"
)

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	Quantity int    `json:"quantity" validate:"gte=1"`
	Kind     string `json:"kind" validate:"omitempty,oneof=shipping billing"`
}

func TestStructMessages(t *testing.T) {
	cases := []struct {
		name string
		in   sample
		want string
	}{
		{"missing email", sample{Quantity: 1}, "email is required"},
		{"bad email", sample{Email: "nope", Quantity: 1}, "email must be a valid email"},
		{"zero quantity", sample{Email: "a@b.co"}, "quantity must be greater than or equal to 1"},
		{"bad enum", sample{Email: "a@b.co", Quantity: 1, Kind: "home"}, "kind must be one of [shipping billing]"},
	}

	for _, tc := range cases {
		err := Struct(tc.in)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if got := err.(*apperr.Error).Message; got != tc.want {
			t.Fatalf("%s: message = %q, want %q", tc.name, got, tc.want)
		}
	}

	if err := Struct(sample{Email: "a@b.co", Quantity: 2, Kind: "billing"}); err != nil {
		t.Fatalf("expected valid struct, got %v", err)
	}
}
