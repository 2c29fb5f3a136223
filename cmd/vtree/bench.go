package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	rtmetrics "runtime/metrics"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vango-dev/vtree/pkg/protocol"
	"github.com/vango-dev/vtree/pkg/server"
	"github.com/vango-dev/vtree/pkg/vdom"
)

type benchProfile struct {
	Clients  int
	Duration time.Duration
	RPS      float64
	ListSize int
}

var benchProfiles = map[string]benchProfile{
	"fast":     {Clients: 50, Duration: 10 * time.Second, RPS: 2, ListSize: 20},
	"standard": {Clients: 200, Duration: 30 * time.Second, RPS: 5, ListSize: 50},
	"stress":   {Clients: 500, Duration: 60 * time.Second, RPS: 10, ListSize: 100},
}

type benchConfig struct {
	Profile      string
	Clients      int
	Duration     time.Duration
	RPS          float64
	ListSize     int
	PayloadBytes int
	MaxProcs     int
	JSONOutput   string
	EventTimeout time.Duration
}

func benchCmd() *cobra.Command {
	var (
		profile  string
		clients  int
		duration time.Duration
		rps      float64
		list     int
		cfg      benchConfig
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure event round trips against an in-process server",
		Long: `Start a server in process, connect many WebSocket clients and have each
send input events at a fixed rate. Every event changes one text node; the
round trip ends when the patch carrying the new text arrives.

Examples:
  vtree bench --profile fast
  vtree bench --clients 10 --duration 5s --json report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, ok := benchProfiles[strings.ToLower(profile)]
			if !ok {
				return fmt.Errorf("unknown profile %q", profile)
			}
			cfg.Profile = profile
			cfg.Clients = pick(clients, base.Clients)
			cfg.Duration = pick(duration, base.Duration)
			cfg.RPS = pick(rps, base.RPS)
			cfg.ListSize = pick(list, base.ListSize)
			if err := cfg.validate(); err != nil {
				return err
			}

			report, err := runBench(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			writeSummary(cmd.ErrOrStderr(), report)
			return writeReport(cmd.OutOrStdout(), cfg.JSONOutput, report)
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "standard", "Profile: fast, standard or stress")
	cmd.Flags().IntVar(&clients, "clients", 0, "Concurrent WebSocket clients")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Benchmark duration")
	cmd.Flags().Float64Var(&rps, "rps", 0, "Events per second per client")
	cmd.Flags().IntVar(&list, "list", -1, "Items rendered per session")
	cmd.Flags().IntVar(&cfg.PayloadBytes, "payload-bytes", 24, "Bytes of text per event")
	cmd.Flags().IntVar(&cfg.MaxProcs, "max-procs", 0, "GOMAXPROCS cap (0 leaves it unchanged)")
	cmd.Flags().StringVar(&cfg.JSONOutput, "json", "", "Write the JSON report here ('-' for stdout)")
	return cmd
}

// pick returns fallback for unset (non-positive) flag values.
func pick[T int | float64 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

func (c *benchConfig) validate() error {
	switch {
	case c.Clients <= 0:
		return stderrors.New("--clients must be > 0")
	case c.Duration <= 0:
		return stderrors.New("--duration must be > 0")
	case c.RPS <= 0:
		return stderrors.New("--rps must be > 0")
	case c.ListSize <= 0:
		return stderrors.New("--list must be > 0")
	case c.PayloadBytes <= 0:
		return stderrors.New("--payload-bytes must be > 0")
	}
	c.EventTimeout = max(10*time.Duration(float64(time.Second)/c.RPS), 2*time.Second)
	return nil
}

// benchStats is shared by every client of a run.
type benchStats struct {
	eventsSent     atomic.Uint64
	eventsComplete atomic.Uint64
	eventBytes     atomic.Uint64
	patchBytes     atomic.Uint64
	patchFrames    atomic.Uint64
	changes        atomic.Uint64

	dialFailures  atomic.Uint64
	writeFailures atomic.Uint64
	decodeErrors  atomic.Uint64
	serverErrors  atomic.Uint64
	tokenMissing  atomic.Uint64

	opsMu sync.Mutex
	ops   map[string]uint64
}

func (s *benchStats) addOps(p *vdom.Patch) {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	if s.ops == nil {
		s.ops = make(map[string]uint64)
	}
	for op, n := range p.Ops() {
		s.ops[op.String()] += uint64(n)
		s.changes.Add(uint64(n))
	}
}

func runBench(ctx context.Context, cfg benchConfig) (benchReport, error) {
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	srvCfg := server.DefaultServerConfig()
	srvCfg.CheckOrigin = func(*http.Request) bool { return true }
	srvCfg.SessionConfig.HeartbeatInterval = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	listSize := cfg.ListSize
	srv := server.New(srvCfg, func() server.Program { return newLoadProgram(listSize) }, server.WithLogger(logger))

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return benchReport{}, fmt.Errorf("listen: %w", err)
	}
	httpServer := &http.Server{Handler: srv.Handler()}
	go httpServer.Serve(ln)
	defer func() {
		srv.Shutdown(context.Background())
		httpServer.Shutdown(context.Background())
	}()
	wsURL := "ws://" + ln.Addr().String() + srvCfg.LivePath

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var (
		stats     benchStats
		samplesMu sync.Mutex
		samples   []time.Duration
		failed    atomic.Uint64
	)

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeRT := readRuntimeMetrics()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			local, err := runBenchClient(ctx, wsURL, id, cfg, &stats)
			if err != nil {
				failed.Add(1)
			}
			samplesMu.Lock()
			samples = append(samples, local...)
			samplesMu.Unlock()
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterRT := readRuntimeMetrics()

	slices.Sort(samples)
	return buildReport(cfg, elapsed, samples, &stats, failed.Load(), before, after, beforeRT, afterRT), nil
}

// inputPath addresses the <input> of the load program.
var inputPath = vdom.Root.Add(0, "").Add(0, "").String()

func runBenchClient(ctx context.Context, wsURL string, id int, cfg benchConfig, stats *benchStats) ([]time.Duration, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		stats.dialFailures.Add(1)
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(cfg.EventTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read mount: %w", err)
	}
	if f, err := protocol.DecodeFrame(data); err != nil || f.Type != protocol.FrameMount {
		stats.decodeErrors.Add(1)
		return nil, fmt.Errorf("expected a Mount frame")
	}

	period := time.Duration(float64(time.Second) / cfg.RPS)
	var samples []time.Duration
	for seq := uint64(1); ; seq++ {
		if ctx.Err() != nil {
			return samples, nil
		}

		token := makeToken(id, seq, cfg.PayloadBytes)
		payload, _ := json.Marshal(map[string]any{"target": map[string]string{"value": token}})
		frame := protocol.EventFrame(&protocol.Event{Path: inputPath, Name: "input", Payload: payload}).Encode()

		started := time.Now()
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			stats.writeFailures.Add(1)
			return samples, fmt.Errorf("write event: %w", err)
		}
		stats.eventsSent.Add(1)
		stats.eventBytes.Add(uint64(len(frame)))

		conn.SetReadDeadline(time.Now().Add(cfg.EventTimeout))
		if err := awaitToken(conn, token, stats); err != nil {
			if ctx.Err() != nil {
				return samples, nil
			}
			stats.tokenMissing.Add(1)
			return samples, err
		}
		samples = append(samples, time.Since(started))
		stats.eventsComplete.Add(1)

		if sleep := period - time.Since(started); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return samples, nil
			case <-timer.C:
			}
		}
	}
}

// awaitToken reads frames until a patch sets some text node to token.
func awaitToken(conn *websocket.Conn, token string, stats *benchStats) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f, err := protocol.DecodeFrame(data)
		if err != nil {
			stats.decodeErrors.Add(1)
			return err
		}

		switch f.Type {
		case protocol.FramePatch:
			stats.patchFrames.Add(1)
			stats.patchBytes.Add(uint64(len(data)))
			pm, err := protocol.DecodePatchMessage(f.Payload)
			if err != nil {
				stats.decodeErrors.Add(1)
				return err
			}
			stats.addOps(pm.Patch)
			if setsText(pm.Patch, token) {
				return nil
			}
		case protocol.FrameError:
			stats.serverErrors.Add(1)
			return stderrors.New("server error frame")
		}
	}
}

func setsText(p *vdom.Patch, text string) bool {
	found := false
	p.Walk(func(_ int, p *vdom.Patch) bool {
		for _, c := range p.Changes {
			if c.Op == vdom.OpReplaceText && c.Content == text {
				found = true
			}
		}
		return !found
	})
	return found
}

func makeToken(id int, seq uint64, size int) string {
	base := strconv.FormatUint(uint64(id)<<32^seq, 36)
	if len(base) >= size {
		return base[len(base)-size:]
	}
	return base + strings.Repeat("x", size-len(base))
}

// loadProgram echoes every input into a text node and one list item.
type loadProgram struct {
	echo  string
	items []string
}

type echoInput struct{ value string }

func newLoadProgram(size int) server.Program {
	items := make([]string, size)
	for i := range items {
		items[i] = "Item " + strconv.Itoa(i)
	}
	return &loadProgram{items: items}
}

func (p *loadProgram) Update(msg any) {
	in, ok := msg.(echoInput)
	if !ok {
		return
	}
	p.echo = in.value
	h := fnv.New32a()
	h.Write([]byte(in.value))
	p.items[int(h.Sum32()%uint32(len(p.items)))] = in.value
}

func (p *loadProgram) View() *vdom.Node {
	rows := make([]*vdom.Node, len(p.items))
	for i, it := range p.items {
		rows[i] = vdom.Li(vdom.Key(strconv.Itoa(i)), it)
	}
	return vdom.Div(
		vdom.Input(vdom.Type("text"), vdom.OnInput(func(v string) any { return echoInput{v} })),
		vdom.Div(vdom.ID("echo"), vdom.Text(p.echo)),
		vdom.Ul(rows),
	)
}

type runtimeSnapshot struct {
	cpuTotal float64
	cpuGC    float64
	objects  uint64
}

func readRuntimeMetrics() runtimeSnapshot {
	samples := []rtmetrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:objects"},
	}
	rtmetrics.Read(samples)
	var out runtimeSnapshot
	for _, s := range samples {
		if s.Value.Kind() == rtmetrics.KindBad {
			continue
		}
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotal = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGC = s.Value.Float64()
		case "/gc/heap/allocs:objects":
			out.objects = s.Value.Uint64()
		}
	}
	return out
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type benchReport struct {
	Run        runInfo           `json:"run"`
	Workload   benchConfig       `json:"workload"`
	LatencyMS  latencyInfo       `json:"latency_ms"`
	Events     uint64            `json:"events_total"`
	EventsPerS float64           `json:"events_per_sec"`
	Protocol   protocolInfo      `json:"protocol"`
	GC         gcInfo            `json:"gc"`
	Errors     map[string]uint64 `json:"errors"`
}

type runInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
	Revision  string `json:"revision,omitempty"`
}

type latencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type protocolInfo struct {
	EventBytes      uint64            `json:"event_bytes_total"`
	PatchBytes      uint64            `json:"patch_bytes_total"`
	PatchFrames     uint64            `json:"patch_frames_total"`
	ChangesPerEvent float64           `json:"changes_per_event"`
	Ops             map[string]uint64 `json:"ops"`
}

type gcInfo struct {
	AllocMB       float64 `json:"alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
	PauseTotalMS  float64 `json:"pause_total_ms"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
	AllocObjects  uint64  `json:"alloc_objects"`
}

func buildReport(cfg benchConfig, elapsed time.Duration, latencies []time.Duration, s *benchStats, failedClients uint64,
	before, after runtime.MemStats, beforeRT, afterRT runtimeSnapshot) benchReport {
	events := s.eventsComplete.Load()

	r := benchReport{
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
			Revision:  vcsRevision(),
		},
		Workload:   cfg,
		Events:     events,
		EventsPerS: float64(events) / math.Max(elapsed.Seconds(), 0.001),
		Protocol: protocolInfo{
			EventBytes:  s.eventBytes.Load(),
			PatchBytes:  s.patchBytes.Load(),
			PatchFrames: s.patchFrames.Load(),
			Ops:         s.ops,
		},
		GC: gcInfo{
			AllocMB:      float64(after.TotalAlloc-before.TotalAlloc) / (1 << 20),
			NumGC:        after.NumGC - before.NumGC,
			PauseTotalMS: ms(time.Duration(after.PauseTotalNs - before.PauseTotalNs)),
			AllocObjects: afterRT.objects - beforeRT.objects,
		},
		Errors: map[string]uint64{
			"failed_clients": failedClients,
			"dial":           s.dialFailures.Load(),
			"write":          s.writeFailures.Load(),
			"decode":         s.decodeErrors.Load(),
			"server":         s.serverErrors.Load(),
			"token_missing":  s.tokenMissing.Load(),
		},
	}
	if total := afterRT.cpuTotal - beforeRT.cpuTotal; total > 0 {
		r.GC.GCCPUFraction = (afterRT.cpuGC - beforeRT.cpuGC) / total
	}
	if events > 0 {
		r.Protocol.ChangesPerEvent = float64(s.changes.Load()) / float64(events)
	}
	if n := len(latencies); n > 0 {
		r.LatencyMS = latencyInfo{
			Min: ms(latencies[0]),
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(latencies[n-1]),
		}
	}
	return r
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func writeSummary(w io.Writer, r benchReport) {
	fmt.Fprintf(w, "=== vtree bench (%s) ===\n", r.Workload.Profile)
	fmt.Fprintf(w, "Clients: %d  Duration: %s  Rate: %.2f events/s/client  List: %d\n",
		r.Workload.Clients, r.Workload.Duration, r.Workload.RPS, r.Workload.ListSize)
	fmt.Fprintf(w, "Events: %d (%.1f/s)\n\n", r.Events, r.EventsPerS)

	if r.LatencyMS.Max == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
	} else {
		fmt.Fprintln(w, "Round trip (event sent -> patch decoded):")
		fmt.Fprintf(w, "  min %.2f  p50 %.2f  p95 %.2f  p99 %.2f  max %.2f ms\n",
			r.LatencyMS.Min, r.LatencyMS.P50, r.LatencyMS.P95, r.LatencyMS.P99, r.LatencyMS.Max)
	}
	fmt.Fprintf(w, "Patch frames: %d (%d bytes), %.2f changes/event\n",
		r.Protocol.PatchFrames, r.Protocol.PatchBytes, r.Protocol.ChangesPerEvent)
	fmt.Fprintf(w, "GC: %.2f MB allocated, %d cycles, %.2f ms paused, %.2f%% CPU\n",
		r.GC.AllocMB, r.GC.NumGC, r.GC.PauseTotalMS, r.GC.GCCPUFraction*100)

	var failures uint64
	for _, n := range r.Errors {
		failures += n
	}
	fmt.Fprintf(w, "Errors: %d\n", failures)
}

func writeReport(stdout io.Writer, path string, r benchReport) error {
	var out io.Writer
	switch path {
	case "":
		return nil
	case "-":
		out = stdout
	default:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
