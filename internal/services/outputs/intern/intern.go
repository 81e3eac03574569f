// Package intern deduplicates the strings stored in action fields.
package intern

import "sync"

// String is a pooled string handle. Equal text interned in the same Pool
// always yields the same handle, so handles compare by identity.
type String uint32

// Null is the handle of the empty string.
const Null String = 0

// Pool owns interned strings for the lifetime of a world.
type Pool struct {
	mu     sync.RWMutex
	ids    map[string]String
	values []string
}

// NewPool returns an empty string pool.
func NewPool() *Pool {
	return &Pool{
		ids:    map[string]String{},
		values: []string{""},
	}
}

// Intern returns the handle for text, adding it to the pool when new.
func (p *Pool) Intern(text string) String {
	if text == "" {
		return Null
	}

	p.mu.RLock()
	id, ok := p.ids[text]
	p.mu.RUnlock()
	if ok {
		return id
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.ids[text]; ok {
		return id
	}
	id = String(len(p.values))
	p.values = append(p.values, text)
	p.ids[text] = id
	return id
}

// Lookup returns the text for s. Unknown handles read as the empty string.
func (p *Pool) Lookup(s String) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(s) >= len(p.values) {
		return ""
	}
	return p.values[s]
}

// Len returns the number of distinct non-empty strings in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values) - 1
}
