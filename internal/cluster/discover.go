package cluster

import (
	"context"
	"sync"
)

// Discover dials every address in seeds, performs the client side of the
// handshake, and recursively dials any newly-learned peer addresses until a
// full pass turns up nothing new (§4.10). Discover blocks until every seed
// and every peer learned from them has been visited; onComplete, if non-nil,
// then fires before Discover returns.
func (r *NodeRegistry) Discover(ctx context.Context, seeds []string, onComplete func()) {
	var (
		mu      sync.Mutex
		visited = make(map[string]bool)
		wg      sync.WaitGroup
	)

	var visit func(addr string)
	visit = func(addr string) {
		defer wg.Done()

		mu.Lock()
		if visited[addr] {
			mu.Unlock()
			return
		}
		visited[addr] = true
		mu.Unlock()

		peers, err := r.connect(ctx, addr)
		if err != nil {
			log.WarnS(ctx, "discovery dial failed", err, "addr", addr)
			return
		}

		for _, p := range peers {
			if p.NodeID == r.cfg.NodeID || p.Addr == "" {
				continue
			}
			mu.Lock()
			already := visited[p.Addr]
			mu.Unlock()
			if !already {
				wg.Add(1)
				go visit(p.Addr)
			}
		}
	}

	for _, seed := range seeds {
		wg.Add(1)
		go visit(seed)
	}
	wg.Wait()

	if onComplete != nil {
		onComplete()
	}
}
