package reward

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// maxLineBytes bounds one JSON message from the mod.
const maxLineBytes = 64 * 1024

// wireSignal is the JSON-lines message format sent by the game mod.
//
//	{"episode_id":"42","reward":1.5,"terminal":false,"reset":false,"ts":1718000000.25}
//
// ts is Unix seconds and optional; arrival time is used when absent.
type wireSignal struct {
	EpisodeID string             `json:"episode_id"`
	Reward    float64            `json:"reward"`
	Terminal  bool               `json:"terminal"`
	Reset     bool               `json:"reset"`
	TS        float64            `json:"ts"`
	Info      map[string]float64 `json:"info"`
}

func (w wireSignal) signal(arrived time.Time) core.RewardSignal {
	ts := arrived
	if w.TS > 0 {
		sec, frac := math.Modf(w.TS)
		ts = time.Unix(int64(sec), int64(frac*1e9))
	}
	return core.RewardSignal{
		Timestamp: ts,
		Reward:    w.Reward,
		EpisodeID: w.EpisodeID,
		Terminal:  w.Terminal,
		Reset:     w.Reset,
		Info:      w.Info,
	}
}

// Listener accepts connections from the game mod and feeds every decoded
// message into a Buffer. One goroutine per connection.
type Listener struct {
	ln     net.Listener
	buf    *Buffer
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	malformed atomic.Uint64
	closeOnce sync.Once
}

// Listen starts accepting on network ("tcp" or "unix") and address.
func Listen(ctx context.Context, network, address string, buf *Buffer, logger *log.Logger) (*Listener, error) {
	if network == "unix" {
		// Remove a stale socket left by a previous run
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reward: cannot remove stale socket %s: %w", address, err)
		}
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("reward: cannot listen on %s %s: %w", network, address, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &Listener{
		ln:     ln,
		buf:    buf,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[net.Conn]struct{}),
	}

	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Poll implements Channel.
func (l *Listener) Poll() (core.RewardSignal, bool) {
	return l.buf.Poll()
}

// Malformed returns the number of undecodable messages.
func (l *Listener) Malformed() uint64 {
	return l.malformed.Load()
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logf("accept failed", "error", err)
			continue
		}

		l.mu.Lock()
		if l.ctx.Err() != nil {
			l.mu.Unlock()
			conn.Close()
			return
		}
		l.conns[conn] = struct{}{}
		l.mu.Unlock()

		l.wg.Add(1)
		go l.serve(conn)
	}
}

func (l *Listener) serve(conn net.Conn) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	if l.logger != nil {
		l.logger.Info("reward source connected", "remote", remote)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var w wireSignal
		if err := json.Unmarshal(line, &w); err != nil {
			l.malformed.Add(1)
			l.logf("malformed reward message", "remote", remote, "error", err)
			continue
		}
		if err := l.buf.Publish(l.ctx, w.signal(time.Now())); err != nil {
			return
		}
	}

	if l.logger != nil {
		l.logger.Info("reward source disconnected", "remote", remote)
	}
}

func (l *Listener) logf(msg string, kv ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, kv...)
	}
}

// Close stops accepting, drops open connections and waits for the goroutines.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.ln.Close()
		l.buf.Close()

		l.mu.Lock()
		for conn := range l.conns {
			conn.Close()
		}
		l.mu.Unlock()

		l.wg.Wait()
	})
	return err
}
