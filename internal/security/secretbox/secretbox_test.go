package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func testKey(seed byte) []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return raw
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(testKey(1))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	msg := `{"company":"Clínica Sonrisa","domain":"sonrisa.example"}`
	ct, err := box.Encrypt([]byte(msg))
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	pt, err := box.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt err: %v", err)
	}
	if string(pt) != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	t.Parallel()
	box, _ := New(testKey(200))

	ct, err := box.Encrypt([]byte("top secret"))
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0xFF
	tampered := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := box.Decrypt(tampered); err == nil {
		t.Fatal("expected auth error on tampered ciphertext")
	}
	if _, err := box.Decrypt("no-separator"); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestFromString_AcceptsBase64AndHex(t *testing.T) {
	t.Parallel()
	k := testKey(7)
	a, err := FromString(base64.StdEncoding.EncodeToString(k))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	b, err := FromString(hex.EncodeToString(k))
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	ct, _ := a.Encrypt([]byte("x"))
	if pt, err := b.Decrypt(ct); err != nil || string(pt) != "x" {
		t.Fatalf("keys decoded differently: %v", err)
	}
	if _, err := FromString("too-short"); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error with empty env")
	}
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, key)
	if _, err := FromEnv(); err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
}
