package github

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/sakif/commit-streak/internal/model"
)

// ClientPool hands out one Client per credential token and keeps it, so the
// quota learned from earlier runs is still in force on the next one.
type ClientPool struct {
	cfg  Config
	opts []Option

	mu      sync.Mutex
	clients map[string]*Client
}

func NewClientPool(cfg Config, opts ...Option) *ClientPool {
	return &ClientPool{
		cfg:     cfg,
		opts:    opts,
		clients: make(map[string]*Client),
	}
}

// For returns the shared client of cred, creating it on first use.
func (p *ClientPool) For(cred model.Credential) (*Client, error) {
	key := tokenKey(cred.Token)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := New(cred.Token, p.cfg, p.opts...)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}

// Forget drops the client of cred, e.g. after the token was rejected.
func (p *ClientPool) Forget(cred model.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, tokenKey(cred.Token))
}

func (p *ClientPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// tokenKey avoids holding raw tokens as map keys.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
