package security_test

import (
	"strings"
	"testing"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/security"
)

var testHashConfig = config.HashConfig{
	ArgonMemoryKB:    1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyCode(t *testing.T) {
	hash, err := security.HashCode("482913", testHashConfig)
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	if strings.Contains(hash, "482913") {
		t.Fatal("hash must not contain the plaintext code")
	}

	ok, err := security.VerifyCode("482913", hash)
	if err != nil {
		t.Fatalf("VerifyCode returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyCode failed for the correct code")
	}

	ok, err = security.VerifyCode("482914", hash)
	if err != nil {
		t.Fatalf("VerifyCode returned error for wrong code: %v", err)
	}
	if ok {
		t.Fatal("VerifyCode returned true for incorrect code")
	}
}

func TestHashCodeUsesFreshSalt(t *testing.T) {
	first, err := security.HashCode("123456", testHashConfig)
	if err != nil {
		t.Fatalf("HashCode: %v", err)
	}
	second, err := security.HashCode("123456", testHashConfig)
	if err != nil {
		t.Fatalf("HashCode: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct hashes for the same code")
	}
}

func TestVerifyCodeRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "plain", "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"} {
		if _, err := security.VerifyCode("123456", encoded); err != security.ErrInvalidHash {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestGenerateNumericCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := security.GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("GenerateNumericCode: %v", err)
		}
		if !security.IsNumericCode(code, 6) {
			t.Fatalf("unexpected code %q", code)
		}
	}
	if _, err := security.GenerateNumericCode(0); err == nil {
		t.Fatal("expected zero length to fail")
	}
}

func TestIsNumericCode(t *testing.T) {
	cases := map[string]bool{
		"000123":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"١٢٣٤٥٦":  false,
	}
	for code, want := range cases {
		if got := security.IsNumericCode(code, 6); got != want {
			t.Fatalf("IsNumericCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestVerifyCodeUsesStoredParameters(t *testing.T) {
	hash, err := security.HashCode("246810", testHashConfig)
	if err != nil {
		t.Fatalf("HashCode: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected hash header %q", hash)
	}

	// a later cost change must not break verification of earlier hashes
	stronger := testHashConfig
	stronger.ArgonTime = 3
	if _, err := security.HashCode("246810", stronger); err != nil {
		t.Fatalf("HashCode: %v", err)
	}
	ok, err := security.VerifyCode("246810", hash)
	if err != nil || !ok {
		t.Fatalf("expected earlier hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestGenerateNumericCodeKeepsLeadingZeros(t *testing.T) {
	seenLeadingZero := false
	for i := 0; i < 500 && !seenLeadingZero; i++ {
		code, err := security.GenerateNumericCode(2)
		if err != nil {
			t.Fatalf("GenerateNumericCode: %v", err)
		}
		if len(code) != 2 {
			t.Fatalf("code %q lost its padding", code)
		}
		seenLeadingZero = code[0] == '0'
	}
	if !seenLeadingZero {
		t.Fatal("expected a zero-padded code within 500 draws")
	}
}
