package repository

import "sync"

// MemoryNavigator deep-link target given at startup (flag, env or URL query)
type MemoryNavigator struct {
	mu     sync.Mutex
	target string
}

// NewMemoryNavigator empty target means no deep link
func NewMemoryNavigator(target string) *MemoryNavigator {
	return &MemoryNavigator{target: target}
}

// DeepLinkTarget current target, false once cleared
func (n *MemoryNavigator) DeepLinkTarget() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target, n.target != ""
}

// ClearDeepLink consume the target
func (n *MemoryNavigator) ClearDeepLink() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = ""
}
