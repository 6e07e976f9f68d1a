package metrics

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// procReader pulls memory figures out of /proc/meminfo. Committed_AS is the
// commit charge (what the kernel has promised backing store for) and
// CommitLimit the ceiling, matching the "committed memory" risk display.
type procReader struct {
	root string
}

func (p *procReader) commitCharge() (committed, limit uint64, err error) {
	data, err := os.ReadFile(filepath.Join(p.root, "meminfo"))
	if err != nil {
		return 0, 0, fmt.Errorf("read meminfo: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Committed_AS:"):
			committed = parseMeminfoKB(line)
		case strings.HasPrefix(line, "CommitLimit:"):
			limit = parseMeminfoKB(line)
		}
	}
	if committed == 0 && limit == 0 {
		return 0, 0, fmt.Errorf("meminfo missing commit fields")
	}
	return committed, limit, nil
}

// parseMeminfoKB converts a "Key:   12345 kB" line to bytes.
func parseMeminfoKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	value, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return value * 1024
}

// netRateTracker derives receive/send byte rates from the cumulative
// counters in /proc/net/dev. The first observation yields zero rates.
type netRateTracker struct {
	root     string
	lastRecv uint64
	lastSent uint64
	lastTime time.Time
	primed   bool
}

func newNetRateTracker(procRoot string) *netRateTracker {
	return &netRateTracker{root: procRoot}
}

func (n *netRateTracker) rates(now time.Time) (recvBps, sentBps float64) {
	recv, sent, err := n.readCounters()
	if err != nil {
		return 0, 0
	}

	if n.primed {
		elapsed := now.Sub(n.lastTime).Seconds()
		if elapsed > 0 && recv >= n.lastRecv && sent >= n.lastSent {
			recvBps = float64(recv-n.lastRecv) / elapsed
			sentBps = float64(sent-n.lastSent) / elapsed
		}
	}

	n.lastRecv = recv
	n.lastSent = sent
	n.lastTime = now
	n.primed = true
	return recvBps, sentBps
}

// readCounters sums rx/tx bytes over all interfaces except loopback.
func (n *netRateTracker) readCounters() (recv, sent uint64, err error) {
	data, err := os.ReadFile(filepath.Join(n.root, "net", "dev"))
	if err != nil {
		return 0, 0, fmt.Errorf("read net/dev: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		iface := strings.TrimSpace(line[:idx])
		if iface == "lo" {
			continue
		}
		fields := strings.Fields(line[idx+1:])
		if len(fields) < 9 {
			continue
		}
		rx, rxErr := strconv.ParseUint(fields[0], 10, 64)
		tx, txErr := strconv.ParseUint(fields[8], 10, 64)
		if rxErr != nil || txErr != nil {
			continue
		}
		recv += rx
		sent += tx
	}
	return recv, sent, nil
}
