package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("svc-ui", testSecret, 15, ScopeWrite)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "svc-ui" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "svc-ui")
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != ScopeWrite {
		t.Errorf("Scopes = %v, want [%s]", claims.Scopes, ScopeWrite)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestGenerateToken_MissingSubject(t *testing.T) {
	if _, err := GenerateToken("", testSecret, 15); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("GenerateToken(\"\") error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("svc-ui", "correct-secret", 15)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	_, err = ParseToken(token, "wrong-secret")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc-ui",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken(expired) error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_InvalidSigningMethod(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc-ui",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if _, err := ParseToken(token, testSecret); err == nil {
		t.Error("ParseToken() should reject HS512 tokens")
	}

	for _, bad := range []string{"", "abc.def", "not-a-valid-jwt"} {
		if _, err := ParseToken(bad, testSecret); err == nil {
			t.Errorf("ParseToken(%q) should fail", bad)
		}
	}
}

func TestParseToken_UnknownScope(t *testing.T) {
	token, err := GenerateToken("svc-ui", testSecret, 15, Scope("inventory:admin"))
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	token, err := GenerateToken("svc-ui", testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	expectedExpiry := time.Now().Add(15 * time.Minute)
	diff := claims.ExpiresAt.Time.Sub(expectedExpiry)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL should be ~15 minutes, got expiry diff of %v", diff)
	}
}

func TestClaimsCan(t *testing.T) {
	tests := []struct {
		name   string
		scopes []Scope
		want   Scope
		ok     bool
	}{
		{"no scopes reads", nil, ScopeRead, true},
		{"no scopes cannot write", nil, ScopeWrite, false},
		{"read cannot write", []Scope{ScopeRead}, ScopeWrite, false},
		{"write implies read", []Scope{ScopeWrite}, ScopeRead, true},
		{"write writes", []Scope{ScopeWrite}, ScopeWrite, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Claims{Scopes: tt.scopes}
			if got := c.Can(tt.want); got != tt.ok {
				t.Errorf("Can(%s) = %v, want %v", tt.want, got, tt.ok)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc", "abc", false},
		{"Bearer ", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("BearerToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
