package password

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Blacklist es un set de passwords prohibidos (comparación case-insensitive).
type Blacklist struct {
	mu   sync.RWMutex
	data map[string]struct{}
}

// LoadBlacklist lee un archivo con un password por línea; '#' comenta.
// Path vacío retorna una lista vacía.
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := NewBlacklist()
	if strings.TrimSpace(path) == "" {
		return bl, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(strings.ToLower(sc.Text()))
		if s != "" && !strings.HasPrefix(s, "#") {
			bl.data[s] = struct{}{}
		}
	}
	return bl, sc.Err()
}

// NewBlacklist crea una lista con las entradas dadas.
func NewBlacklist(entries ...string) *Blacklist {
	bl := &Blacklist{data: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		if s := strings.TrimSpace(strings.ToLower(e)); s != "" {
			bl.data[s] = struct{}{}
		}
	}
	return bl
}

func (b *Blacklist) Contains(pwd string) bool {
	if b == nil {
		return false
	}
	p := strings.ToLower(strings.TrimSpace(pwd))
	b.mu.RLock()
	_, ok := b.data[p]
	b.mu.RUnlock()
	return ok
}
