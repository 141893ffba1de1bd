package auth

import "testing"

func TestHashAndComparePassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	match, err := ComparePassword("correct horse battery", hash)
	if err != nil || !match {
		t.Fatalf("ComparePassword = %v, %v; want match", match, err)
	}

	match, err = ComparePassword("wrong password", hash)
	if err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
	if match {
		t.Fatal("wrong password matched")
	}
}

func TestHashPasswordRejectsShort(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("short"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  Ops@Example.COM "); got != "ops@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
