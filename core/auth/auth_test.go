package auth

import (
	"testing"
	"time"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("哈希不应等于明文")
	}
	if !VerifyPassword("s3cret", hash) {
		t.Error("正确密码校验失败")
	}
	if VerifyPassword("wrong", hash) {
		t.Error("错误密码通过了校验")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	InitJWT("test-secret", time.Hour)

	token, err := GenerateToken(42, "alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Errorf("claims = (%d, %q), 期望 (42, alice)", claims.UserID, claims.Username)
	}
}

func TestParseTokenRejectsTampered(t *testing.T) {
	InitJWT("test-secret", time.Hour)
	token, err := GenerateToken(1, "alice")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseToken(token + "x"); err == nil {
		t.Error("被篡改的令牌应解析失败")
	}

	InitJWT("another-secret", time.Hour)
	if _, err := ParseToken(token); err == nil {
		t.Error("密钥不符的令牌应解析失败")
	}
}
