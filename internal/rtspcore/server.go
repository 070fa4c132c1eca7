package rtspcore

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kinoglaz/kgd/internal/config"
)

// Server owns the TCP listener, the server-wide config holder, and the
// process-wide description cache; it is the top-level object a daemon
// bootstraps (spec §6's CLI, §9's "single configuration structure
// initialized once, read-only except for an explicit reload path").
type Server struct {
	cfg    *config.Holder
	logger zerolog.Logger
	cache  *Cache

	listener net.Listener

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer builds a Server over an already-bound listener.
func NewServer(listener net.Listener, cfg *config.Holder, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		cache:    NewCache(cfg.Load().ShareDescriptors),
		listener: listener,
		conns:    map[*Conn]struct{}{},
	}
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, spawning one task per connection (spec §5: "multi-threaded,
// one task per connection").
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close() //nolint:errcheck
	}()

	for {
		tcpConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.drain()
				return nil
			default:
				return err
			}
		}

		tc, ok := tcpConn.(*net.TCPConn)
		if !ok {
			tcpConn.Close() //nolint:errcheck
			continue
		}

		c := NewConn(tc, s.cfg, s.cache, s.logger)
		s.track(c)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			c.Serve()
		}()
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// drain closes every live connection's TCP socket, which unblocks its
// listen loop's next read and drives it through Conn.closeAll, then
// waits for every connection task to finish.
func (s *Server) drain() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.tcpConn.Close() //nolint:errcheck
	}

	s.wg.Wait()
}

// Reload swaps in a freshly parsed Config (spec §6: "SIGHUP reloads INI
// parameters"). The description cache's sharing policy is fixed at
// bootstrap, matching the cache's own lifetime.
func (s *Server) Reload(cfg config.Config) {
	s.cfg.Store(cfg)
}
