package peer

import (
	"sync"

	coreerrors "peerbridge/internal/core/errors"
)

// Directory 对端标识到载体地址的映射；未登记的对端走 relay
type Directory struct {
	mu    sync.RWMutex
	peers map[string]string
	relay string
}

// NewDirectory 创建地址目录
func NewDirectory(peers map[string]string, relay string) *Directory {
	d := &Directory{peers: make(map[string]string, len(peers)), relay: relay}
	for id, addr := range peers {
		d.peers[id] = addr
	}
	return d
}

// Set 登记或更新对端地址
func (d *Directory) Set(id, address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[id] = address
}

// Remove 删除对端地址
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, id)
}

// Resolve 查找对端地址
func (d *Directory) Resolve(id string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if addr, ok := d.peers[id]; ok {
		return addr, nil
	}
	if d.relay != "" {
		return d.relay, nil
	}
	return "", coreerrors.Newf(coreerrors.CodePeerUnknown, "no address for peer %s and no relay configured", id)
}
