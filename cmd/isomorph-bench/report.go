package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// report is the JSON document a run produces. Client-side numbers come
// from the bench connections; the server section is read back from the
// server's own metrics registry.
type report struct {
	Version   string       `json:"version"`
	Timestamp string       `json:"timestamp"`
	Go        string       `json:"go"`
	Platform  string       `json:"platform"`
	CPUs      int          `json:"cpus"`
	Commit    string       `json:"commit,omitempty"`
	Workload  benchConfig  `json:"workload"`
	RoundTrip roundTrip    `json:"round_trip"`
	Pages     pageStats    `json:"pages"`
	Wire      wireStats    `json:"wire"`
	Server    serverStats  `json:"server"`
	Memory    memoryStats  `json:"memory"`
	Errors    errorSummary `json:"errors"`
}

// roundTrip measures Increment sent to the matching count update decoded.
// Consistent reports whether the server received every Increment the
// clients wrote.
type roundTrip struct {
	Completed  uint64             `json:"completed"`
	PerSecond  float64            `json:"per_second"`
	PerClient  float64            `json:"per_second_per_client"`
	Millis     map[string]float64 `json:"ms"`
	Consistent bool               `json:"counts_consistent"`
}

type pageStats struct {
	Rendered    uint64  `json:"rendered"`
	AvgBytes    float64 `json:"avg_bytes"`
	CacheHits   uint64  `json:"cache_hits"`
	CacheMisses uint64  `json:"cache_misses"`
}

type wireStats struct {
	AvgIncrementBytes float64 `json:"avg_increment_bytes"`
	AvgUpdateBytes    float64 `json:"avg_update_bytes"`
	UpdatesPerEvent   float64 `json:"updates_per_event"`
	Pings             uint64  `json:"pings"`
}

type serverStats struct {
	Sessions       uint64            `json:"sessions"`
	Received       map[string]uint64 `json:"received"`
	Sent           map[string]uint64 `json:"sent"`
	ProtocolErrors uint64            `json:"protocol_errors"`
}

type memoryStats struct {
	AllocMB     float64 `json:"alloc_mb"`
	HeapLiveMB  float64 `json:"heap_live_mb"`
	NumGC       uint32  `json:"num_gc"`
	PauseMS     float64 `json:"pause_total_ms"`
	GCCPUShare  float64 `json:"gc_cpu_share"`
	BytesPerRTT float64 `json:"alloc_bytes_per_round_trip"`
}

type errorSummary struct {
	Total         uint64 `json:"total"`
	Page          uint64 `json:"page"`
	Handshake     uint64 `json:"handshake"`
	EventWrite    uint64 `json:"event_write"`
	Decode        uint64 `json:"decode"`
	SequenceGaps  uint64 `json:"sequence_gaps"`
	ServerCloses  uint64 `json:"server_closes"`
	UpdateMissing uint64 `json:"update_missing"`
}

// memSnapshot forces a collection first so heap figures compare.
func memSnapshot() runtime.MemStats {
	var ms runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&ms)
	return ms
}

// quantile returns the nearest-rank q quantile of sorted.
func quantile(sorted []time.Duration, q float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(q * float64(n)))
	return sorted[min(max(rank, 1), n)-1]
}

func millis(sorted []time.Duration) map[string]float64 {
	if len(sorted) == 0 {
		return nil
	}
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	return map[string]float64{
		"min": ms(sorted[0]),
		"p50": ms(quantile(sorted, 0.50)),
		"p95": ms(quantile(sorted, 0.95)),
		"p99": ms(quantile(sorted, 0.99)),
		"max": ms(sorted[len(sorted)-1]),
	}
}

func perUnit(total, units uint64) float64 {
	if units == 0 {
		return 0
	}
	return float64(total) / float64(units)
}

// readServer sums the server's counters by their distinguishing label.
func readServer(g prometheus.Gatherer) (serverStats, pageStats, error) {
	out := serverStats{Received: map[string]uint64{}, Sent: map[string]uint64{}}
	var pages pageStats

	families, err := g.Gather()
	if err != nil {
		return out, pages, err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			v := uint64(m.GetCounter().GetValue())
			switch mf.GetName() {
			case "isomorph_sessions_total":
				out.Sessions += v
			case "isomorph_messages_received_total":
				out.Received[label(m, "message")] += v
			case "isomorph_messages_sent_total":
				out.Sent[label(m, "message")] += v
			case "isomorph_protocol_errors_total":
				out.ProtocolErrors += v
			case "isomorph_render_cache_total":
				if label(m, "result") == "hit" {
					pages.CacheHits += v
				} else {
					pages.CacheMisses += v
				}
			}
		}
	}
	return out, pages, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// runResult is everything a finished run hands to newReport.
type runResult struct {
	cfg      benchConfig
	elapsed  time.Duration
	samples  []time.Duration
	counters *benchCounters
	errs     *benchErrors
	before   runtime.MemStats
	after    runtime.MemStats
	server   prometheus.Gatherer
}

func newReport(r runResult) (report, error) {
	slices.Sort(r.samples)
	c := r.counters
	done := c.eventsComplete.Load()
	perSec := float64(done) / max(r.elapsed.Seconds(), 0.001)

	srv, pages, err := readServer(r.server)
	if err != nil {
		return report{}, fmt.Errorf("gather server metrics: %w", err)
	}
	pages.Rendered = c.pagesRendered.Load()
	pages.AvgBytes = perUnit(c.pageBytes.Load(), pages.Rendered)

	alloc := r.after.TotalAlloc - r.before.TotalAlloc
	return report{
		Version:   "2",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		Commit:    gitCommit(),
		Workload:  r.cfg,
		RoundTrip: roundTrip{
			Completed:  done,
			PerSecond:  perSec,
			PerClient:  perSec / float64(max(r.cfg.Clients, 1)),
			Millis:     millis(r.samples),
			Consistent: srv.Received["Increment"] == c.eventsSent.Load(),
		},
		Pages: pages,
		Wire: wireStats{
			AvgIncrementBytes: perUnit(c.eventBytes.Load(), c.eventsSent.Load()),
			AvgUpdateBytes:    perUnit(c.updateBytes.Load(), c.updateFrames.Load()),
			UpdatesPerEvent:   perUnit(c.updateFrames.Load(), done),
			Pings:             c.pings.Load(),
		},
		Server: srv,
		Memory: memoryStats{
			AllocMB:     float64(alloc) / (1 << 20),
			HeapLiveMB:  float64(r.after.HeapAlloc) / (1 << 20),
			NumGC:       r.after.NumGC - r.before.NumGC,
			PauseMS:     float64(r.after.PauseTotalNs-r.before.PauseTotalNs) / 1e6,
			GCCPUShare:  r.after.GCCPUFraction,
			BytesPerRTT: perUnit(alloc, done),
		},
		Errors: r.errs.summary(),
	}, nil
}

func (e *benchErrors) summary() errorSummary {
	return errorSummary{
		Total:         e.totalErrors.Load(),
		Page:          e.pageFailures.Load(),
		Handshake:     e.handshakeFailures.Load(),
		EventWrite:    e.eventWriteFailures.Load(),
		Decode:        e.decodeFailures.Load(),
		SequenceGaps:  e.sequenceGaps.Load(),
		ServerCloses:  e.serverCloses.Load(),
		UpdateMissing: e.updateMissing.Load(),
	}
}

func writeSummary(w io.Writer, r report) {
	fmt.Fprintf(w, "isomorph-bench %s: %d clients for %s at %.1f increments/s each\n\n",
		r.Workload.Profile, r.Workload.Clients, r.Workload.Duration, r.Workload.RPS)

	rt := r.RoundTrip
	fmt.Fprintf(w, "round trips  %d (%.1f/s, %.2f/s per client)\n", rt.Completed, rt.PerSecond, rt.PerClient)
	if rt.Millis != nil {
		fmt.Fprintf(w, "  ms         min %.2f  p50 %.2f  p95 %.2f  p99 %.2f  max %.2f\n",
			rt.Millis["min"], rt.Millis["p50"], rt.Millis["p95"], rt.Millis["p99"], rt.Millis["max"])
	}
	fmt.Fprintf(w, "  counts     consistent=%t\n", rt.Consistent)

	fmt.Fprintf(w, "pages        %d rendered, %.0f bytes avg, cache %d hit / %d miss\n",
		r.Pages.Rendered, r.Pages.AvgBytes, r.Pages.CacheHits, r.Pages.CacheMisses)
	fmt.Fprintf(w, "wire         increment %.1f B, update %.1f B, %.2f updates/increment\n",
		r.Wire.AvgIncrementBytes, r.Wire.AvgUpdateBytes, r.Wire.UpdatesPerEvent)
	fmt.Fprintf(w, "server       %d sessions, %d Increment received, %d protocol errors\n",
		r.Server.Sessions, r.Server.Received["Increment"], r.Server.ProtocolErrors)
	fmt.Fprintf(w, "memory       %.1f MB allocated (%.0f B per round trip), %d GCs, %.2f ms paused\n",
		r.Memory.AllocMB, r.Memory.BytesPerRTT, r.Memory.NumGC, r.Memory.PauseMS)
	fmt.Fprintf(w, "errors       %d\n", r.Errors.Total)
}

func writeJSON(path string, r report) error {
	out := io.Writer(os.Stdout)
	if path != "-" {
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
