// Command isomorph-bench drives many live counter sessions against an
// in-process server and reports round-trip latency, throughput and GC cost.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/isomorph/internal/app/counter"
	"github.com/vango-dev/isomorph/internal/config"
	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/server"
)

const gib = int64(1024 * 1024 * 1024)

type profile struct {
	Name          string
	Clients       int
	Duration      time.Duration
	RPS           float64
	Delta         int64
	MaxProcs      int
	MemLimitBytes int64
}

var profiles = map[string]profile{
	"fast": {
		Name:     "fast",
		Clients:  50,
		Duration: 10 * time.Second,
		RPS:      2,
		Delta:    1,
	},
	"standard": {
		Name:     "standard",
		Clients:  200,
		Duration: 30 * time.Second,
		RPS:      5,
		Delta:    1,
	},
	"stress": {
		Name:          "stress",
		Clients:       500,
		Duration:      60 * time.Second,
		RPS:           10,
		Delta:         1,
		MaxProcs:      4,
		MemLimitBytes: 2 * gib,
	},
}

type benchConfig struct {
	Profile       string        `json:"profile"`
	Clients       int           `json:"clients"`
	Duration      time.Duration `json:"duration_ns"`
	RPS           float64       `json:"rps_per_client"`
	Delta         int64         `json:"delta"`
	MaxProcs      int           `json:"max_procs,omitempty"`
	MemLimitBytes int64         `json:"mem_limit_bytes,omitempty"`
	JSONOutput    string        `json:"-"`
	EventTimeout  time.Duration `json:"event_timeout_ns"`
}

type benchCounters struct {
	pagesRendered  atomic.Uint64
	pageBytes      atomic.Uint64
	eventsSent     atomic.Uint64
	eventsComplete atomic.Uint64
	eventBytes     atomic.Uint64
	updateBytes    atomic.Uint64
	updateFrames   atomic.Uint64
	pings          atomic.Uint64
}

type benchErrors struct {
	pageFailures       atomic.Uint64
	handshakeFailures  atomic.Uint64
	eventWriteFailures atomic.Uint64
	decodeFailures     atomic.Uint64
	sequenceGaps       atomic.Uint64
	serverCloses       atomic.Uint64
	updateMissing      atomic.Uint64
	totalErrors        atomic.Uint64
}

func main() {
	log.SetFlags(0)

	cfg, err := parseConfig()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
	if cfg.MemLimitBytes > 0 {
		debug.SetMemoryLimit(cfg.MemLimitBytes)
	}

	debug.SetGCPercent(100)

	srv, reg, err := newServer(cfg)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	serveCtx, stopServe := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(serveCtx, ln) }()
	defer func() {
		stopServe()
		<-served
	}()

	base := "http://" + ln.Addr().String()
	wsBase := "ws://" + ln.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	samplesCh := make(chan time.Duration, sampleBuffer(cfg.Clients))
	var samples []time.Duration
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samples = append(samples, rtt)
		}
	}()

	var counters benchCounters
	var errCounts benchErrors

	before := memSnapshot()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		clientID := i
		go func() {
			defer wg.Done()
			if err := runClient(ctx, base, wsBase, clientID, cfg, &counters, &errCounts, samplesCh); err != nil {
				errCounts.totalErrors.Add(1)
			}
		}()
	}

	wg.Wait()
	close(samplesCh)
	<-collectorDone

	elapsed := time.Since(start)
	after := memSnapshot()

	rep, err := newReport(runResult{
		cfg:      cfg,
		elapsed:  elapsed,
		samples:  samples,
		counters: &counters,
		errs:     &errCounts,
		before:   before,
		after:    after,
		server:   reg,
	})
	if err != nil {
		log.Fatal(err)
	}
	writeSummary(os.Stderr, rep)
	if err := writeJSON(cfg.JSONOutput, rep); err != nil {
		log.Fatalf("write json: %v", err)
	}
}

// newServer builds a counter-only server with limits opened up for the
// configured load. Assets are served from an empty temp directory. The
// returned registry holds the server's metrics for the report.
func newServer(cfg benchConfig) (*server.Server, *prometheus.Registry, error) {
	dir, err := os.MkdirTemp("", "isomorph-bench-*")
	if err != nil {
		return nil, nil, err
	}

	sc := config.New()
	sc.Assets.Dir = dir
	sc.Session.MaxPerIP = cfg.Clients + 1
	sc.Session.PingInterval = config.Duration(-1)
	sc.Session.RateLimit = math.Max(cfg.RPS*4, 50)
	sc.Session.RateBurst = int(sc.Session.RateLimit) * 2

	reg := prometheus.NewRegistry()
	srv, err := server.New(sc, []server.App{counter.App()},
		server.WithLogger(slog.New(slog.DiscardHandler)),
		server.WithRegistry(reg),
	)
	return srv, reg, err
}

func sampleBuffer(clients int) int {
	if clients < 1 {
		return 1024
	}
	buf := clients * 4
	if buf < 1024 {
		buf = 1024
	}
	return buf
}

func parseConfig() (benchConfig, error) {
	profileFlag := flag.String("profile", "standard", "profile: fast|standard|stress")
	clientsFlag := flag.Int("clients", -1, "number of concurrent sessions")
	durationFlag := flag.String("duration", "", "benchmark duration, e.g. 30s")
	rpsFlag := flag.Float64("rps", -1, "target increments/sec per session")
	deltaFlag := flag.Int64("delta", 0, "amount added per increment")
	maxProcsFlag := flag.Int("max-procs", -1, "GOMAXPROCS cap (0 to leave unchanged)")
	memLimitFlag := flag.String("mem-limit", "", "GOMEMLIMIT (e.g. 2GiB)")
	jsonFlag := flag.String("json", "-", "JSON output path ('-' for stdout)")
	flag.Parse()

	name := strings.ToLower(strings.TrimSpace(*profileFlag))
	if name == "" {
		name = "standard"
	}

	base, ok := profiles[name]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q", name)
	}

	cfg := benchConfig{
		Profile:       base.Name,
		Clients:       base.Clients,
		Duration:      base.Duration,
		RPS:           base.RPS,
		Delta:         base.Delta,
		MaxProcs:      base.MaxProcs,
		MemLimitBytes: base.MemLimitBytes,
		JSONOutput:    strings.TrimSpace(*jsonFlag),
	}

	if *clientsFlag != -1 {
		cfg.Clients = *clientsFlag
	}
	if *durationFlag != "" {
		d, err := time.ParseDuration(*durationFlag)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid -duration: %w", err)
		}
		cfg.Duration = d
	}
	if *rpsFlag != -1 {
		cfg.RPS = *rpsFlag
	}
	if *deltaFlag != 0 {
		cfg.Delta = *deltaFlag
	}
	if *maxProcsFlag != -1 {
		cfg.MaxProcs = *maxProcsFlag
	}
	if *memLimitFlag != "" {
		limit, err := parseBytes(*memLimitFlag)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid -mem-limit: %w", err)
		}
		cfg.MemLimitBytes = limit
	}
	if cfg.JSONOutput == "" {
		cfg.JSONOutput = "-"
	}

	if cfg.Clients <= 0 {
		return benchConfig{}, errors.New("-clients must be > 0")
	}
	if cfg.Duration <= 0 {
		return benchConfig{}, errors.New("-duration must be > 0")
	}
	if cfg.RPS <= 0 {
		return benchConfig{}, errors.New("-rps must be > 0")
	}
	if cfg.MaxProcs < 0 {
		return benchConfig{}, errors.New("-max-procs must be >= 0")
	}
	if cfg.MemLimitBytes < 0 {
		return benchConfig{}, errors.New("-mem-limit must be >= 0")
	}

	cfg.EventTimeout = eventTimeout(cfg.RPS)
	return cfg, nil
}

func eventTimeout(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	period := time.Duration(float64(time.Second) / rps)
	timeout := period * 10
	if timeout < 2*time.Second {
		timeout = 2 * time.Second
	}
	return timeout
}

func parseBytes(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, errors.New("empty size")
	}

	i := strings.IndexFunc(s, func(c rune) bool { return (c < '0' || c > '9') && c != '.' })
	if i == -1 {
		i = len(s)
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid size %q", input)
	}

	value, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, err
	}

	var multiplier float64
	switch suffix := strings.ToLower(strings.TrimSpace(s[i:])); suffix {
	case "", "b":
		multiplier = 1
	case "kb":
		multiplier = 1e3
	case "mb":
		multiplier = 1e6
	case "gb":
		multiplier = 1e9
	case "kib":
		multiplier = 1 << 10
	case "mib":
		multiplier = 1 << 20
	case "gib":
		multiplier = 1 << 30
	default:
		return 0, fmt.Errorf("unknown size suffix %q", suffix)
	}

	return int64(value*multiplier + 0.5), nil
}

// benchConn is one live session seen from the wire.
type benchConn struct {
	conn     *websocket.Conn
	codec    *protocol.Codec
	seq      protocol.Sequencer
	counters *benchCounters
	errs     *benchErrors
}

func (c *benchConn) send(m protocol.Message) (int, error) {
	data := c.codec.EncodeFrame(c.seq.Next(), m)
	return len(data), c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// read returns the next non-keepalive message, answering pings.
func (c *benchConn) read() (protocol.Message, int, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, 0, err
		}
		f, err := c.codec.DecodeFrame(data)
		if err != nil {
			c.errs.decodeFailures.Add(1)
			return nil, 0, err
		}
		if err := c.seq.Accept(f.Seq); err != nil {
			c.errs.sequenceGaps.Add(1)
			return nil, 0, err
		}
		switch m := f.Message.(type) {
		case *protocol.Ping:
			c.counters.pings.Add(1)
			if _, err := c.send(&protocol.Pong{Timestamp: m.Timestamp}); err != nil {
				return nil, 0, err
			}
		case *protocol.Close:
			c.errs.serverCloses.Add(1)
			return nil, 0, fmt.Errorf("server closed session: %s %s", m.Reason, m.Message)
		default:
			return m, len(data), nil
		}
	}
}

// awaitCount reads until the count cell reaches want.
func (c *benchConn) awaitCount(want int64) error {
	for {
		m, n, err := c.read()
		if err != nil {
			return err
		}
		su, ok := m.(*protocol.StateUpdate)
		if !ok || su.Key != counter.KeyCount {
			continue
		}
		c.counters.updateFrames.Add(1)
		c.counters.updateBytes.Add(uint64(n))
		if string(su.Value) == strconv.FormatInt(want, 10) {
			return nil
		}
	}
}

// fetchPage renders the page the session would hydrate, as a browser would
// before opening the socket.
func fetchPage(ctx context.Context, base, query string, counters *benchCounters) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/?"+query, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("page: %s", resp.Status)
	}
	counters.pagesRendered.Add(1)
	counters.pageBytes.Add(uint64(n))
	return nil
}

func runClient(
	ctx context.Context,
	base, wsBase string,
	clientID int,
	cfg benchConfig,
	counters *benchCounters,
	errCounts *benchErrors,
	samples chan<- time.Duration,
) error {
	// Starting values repeat so the render cache sees both hits and misses.
	count := int64(clientID % 16)
	query := "start=" + strconv.FormatInt(count, 10)

	if err := fetchPage(ctx, base, query, counters); err != nil {
		errCounts.pageFailures.Add(1)
		return fmt.Errorf("page: %w", err)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsBase+"/ws/"+counter.Name+"?"+query, nil)
	if err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	c := &benchConn{conn: ws, codec: counter.Codec(), counters: counters, errs: errCounts}

	ws.SetReadDeadline(time.Now().Add(cfg.EventTimeout))
	m, _, err := c.read()
	if err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("welcome: %w", err)
	}
	if _, ok := m.(*protocol.Welcome); !ok {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("welcome: got %T", m)
	}
	if err := c.awaitCount(count); err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("initial state: %w", err)
	}

	defer func() {
		_, _ = c.send(&protocol.Close{Reason: protocol.CloseGoingAway})
	}()

	period := time.Duration(float64(time.Second) / cfg.RPS)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		start := time.Now()

		n, err := c.send(&counter.Increment{Delta: cfg.Delta})
		if err != nil {
			errCounts.eventWriteFailures.Add(1)
			return fmt.Errorf("event write: %w", err)
		}
		counters.eventsSent.Add(1)
		counters.eventBytes.Add(uint64(n))
		count += cfg.Delta

		ws.SetReadDeadline(time.Now().Add(cfg.EventTimeout))
		if err := c.awaitCount(count); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTimeout(err) {
				errCounts.updateMissing.Add(1)
				return errors.New("state update not observed")
			}
			return fmt.Errorf("await state: %w", err)
		}

		rtt := time.Since(start)
		counters.eventsComplete.Add(1)
		samples <- rtt

		if sleep := period - time.Since(start); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func gitCommit() string {
	if val := strings.TrimSpace(os.Getenv("ISOMORPH_GIT_COMMIT")); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv("GIT_COMMIT")); val != "" {
		return val
	}
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
