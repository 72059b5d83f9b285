package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewPaginationCapsLimit(t *testing.T) {
	cases := []struct {
		page, limit         int
		wantPage, wantLimit int
		wantOffset          int
	}{
		{0, 0, 1, DefaultPageSize, 0},
		{2, 10, 2, 10, 10},
		{3, 100000, 3, MaxPageSize, 2 * MaxPageSize},
		{-4, -1, 1, DefaultPageSize, 0},
	}

	for _, tc := range cases {
		pg := NewPagination(tc.page, tc.limit)
		if pg.Page != tc.wantPage || pg.Limit != tc.wantLimit || pg.Offset != tc.wantOffset {
			t.Fatalf("NewPagination(%d, %d) = %+v", tc.page, tc.limit, pg)
		}
	}
}

func TestPaginationMetaPages(t *testing.T) {
	meta := NewPagination(1, 20).Meta(41)
	if meta["total_pages"] != int64(3) {
		t.Fatalf("expected 3 pages, got %v", meta["total_pages"])
	}
}

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	token, err := GenerateToken("secret", id, "admin", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
	if claims.UserID != id || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := GenerateToken("secret", uuid.New(), "customer", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if _, err := ParseToken("secret", token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !CheckPassword(hash, "s3cret!") {
		t.Fatal("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestGenerateReferenceFormat(t *testing.T) {
	ref, err := GenerateReference("ORD", time.UnixMilli(1700000000123))
	if err != nil {
		t.Fatalf("GenerateReference returned error: %v", err)
	}
	if !regexp.MustCompile(`^ORD-1700000000123-\d{3}$`).MatchString(ref) {
		t.Fatalf("unexpected reference %q", ref)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Rose Glow Serum":     "rose-glow-serum",
		"  Vitamin C 15%  ":   "vitamin-c-15",
		"Hydra--Boost! Cream": "hydra-boost-cream",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
