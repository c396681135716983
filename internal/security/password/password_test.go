package password

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPolicy_Validate(t *testing.T) {
	p := DefaultPolicy
	if ok, reasons := p.Validate("Aa1!aaaa"); !ok {
		t.Fatalf("expected valid, got reasons %v", reasons)
	}

	ok, reasons := p.Validate("short")
	if ok {
		t.Fatal("expected invalid")
	}
	want := map[string]bool{"too_short": true, "missing_upper": true, "missing_digit": true, "missing_symbol": true}
	for _, r := range reasons {
		delete(want, r)
	}
	if len(want) != 0 {
		t.Fatalf("missing reasons %v (got %v)", want, reasons)
	}
}

func TestPolicy_Blacklist(t *testing.T) {
	p := DefaultPolicy
	p.Blacklist = NewBlacklist("Password1!")
	ok, reasons := p.Validate("password1!")
	if ok {
		t.Fatal("blacklisted password accepted")
	}
	found := false
	for _, r := range reasons {
		if r == "common_password" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected common_password, got %v", reasons)
	}
}

func TestLoadBlacklist_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bl.txt")
	if err := os.WriteFile(path, []byte("# comment\nQwerty123!\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	bl, err := LoadBlacklist(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bl.Contains("qwerty123!") || bl.Contains("# comment") {
		t.Fatal("unexpected blacklist contents")
	}
}

func TestHashVerify(t *testing.T) {
	fast := Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}
	phc, err := Hash(fast, "Aa1!aaaa")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !Verify("Aa1!aaaa", phc) {
		t.Fatal("verify failed for correct password")
	}
	if Verify("Aa1!aaab", phc) {
		t.Fatal("verify succeeded for wrong password")
	}
	if Verify("Aa1!aaaa", "$bcrypt$whatever") {
		t.Fatal("verify accepted foreign hash")
	}
}
