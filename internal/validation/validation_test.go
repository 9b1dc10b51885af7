package validation

import (
	"strings"
	"testing"
)

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{
		"shop-1234.myshopify.com",
		"vQx8Z0aFbPq2",
		"1726000000000.AbCdEf",
		"store:eu-west:42",
	}
	for _, s := range valid {
		if !IsValidIdentifier(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}

	invalid := []string{
		"",
		".starts-with-dot",
		"has space",
		"null\x00byte",
		"semi;colon",
		strings.Repeat("a", MaxIdentifierLength+1),
	}
	for _, s := range invalid {
		if IsValidIdentifier(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"  ", "/"},
		{"/products/shoe", "/products/shoe"},
		{"products/shoe", "/products/shoe"},
		{"/a\x00b", "/ab"},
	}
	for _, tt := range tests {
		if got := SanitizePath(tt.in); got != tt.want {
			t.Errorf("SanitizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := "/" + strings.Repeat("x", MaxPathLength*2)
	if got := SanitizePath(long); len(got) != MaxPathLength {
		t.Errorf("expected path capped at %d, got %d", MaxPathLength, len(got))
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("storeId", ""),
		Required("visitorId", "v1"),
		Identifier("sessionKey", "bad key"),
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "storeId" || errs[1].Field != "sessionKey" {
		t.Errorf("unexpected error fields: %v", errs)
	}
	if !strings.Contains(errs.Error(), "storeId") {
		t.Errorf("Error() should mention first field, got %q", errs.Error())
	}
}

func TestValidate_NoErrors(t *testing.T) {
	errs := Validate(
		Required("storeId", "shop.example.com"),
		Identifier("visitorId", "vQx8Z0aFbPq2"),
		MaxLength("path", "/products", MaxPathLength),
	)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}
