package tokens

import "testing"

func TestGenerateOpaqueToken_Unique(t *testing.T) {
	a, err := GenerateOpaqueToken(32)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateOpaqueToken(32)
	if a == b || len(a) != 43 {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
	if SHA256Base64URL(a) == SHA256Base64URL(b) {
		t.Fatal("hash collision")
	}
}

func TestNumericCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, err := NumericCode(6)
		if err != nil {
			t.Fatal(err)
		}
		if len(c) != 6 {
			t.Fatalf("code %q has wrong length", c)
		}
		for _, r := range c {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in %q", c)
			}
		}
	}
}
