package verify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/LynnColeArt/gudamm/matmul"
)

// Run statuses.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusErr  = "error"
)

// RunRecord is one timed and verified multiplication.
type RunRecord struct {
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	N            int       `json:"n"`
	M            int       `json:"m"`
	L            int       `json:"l"`
	KernelNs     int64     `json:"kernel_ns,omitempty"`
	TotalNs      int64     `json:"total_ns,omitempty"`
	KernelGFLOPS float64   `json:"kernel_gflops,omitempty"`
	TotalGFLOPS  float64   `json:"total_gflops,omitempty"`
	MaxRelErr    float64   `json:"max_rel_err"`
	Mismatches   int       `json:"mismatches"`
	IPC          float64   `json:"ipc,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRunRecord builds a record from a multiply's timing and, when the
// product was checked, its comparison result.
func NewRunRecord(name string, t matmul.Timing, res *Result, err error) RunRecord {
	r := RunRecord{
		Name:         name,
		Status:       StatusPass,
		N:            t.N,
		M:            t.M,
		L:            t.L,
		KernelNs:     t.Kernel.Nanoseconds(),
		TotalNs:      t.Total.Nanoseconds(),
		KernelGFLOPS: t.KernelFLOPS() / 1e9,
		TotalGFLOPS:  t.TotalFLOPS() / 1e9,
	}
	if t.Counters != nil {
		r.IPC = t.Counters.IPC
	}
	if res != nil {
		r.MaxRelErr = res.MaxRelErr
		r.Mismatches = res.Count
		r.Status = lo.Ternary(res.Passed(), StatusPass, StatusFail)
	}
	if err != nil {
		r.Status = StatusErr
		r.Error = err.Error()
	}
	return r
}

// RunLog appends run records to a JSON session file, rewriting it after
// every record so an interrupted session keeps what it measured.
type RunLog struct {
	mu      sync.Mutex
	records []RunRecord
	path    string
}

// NewRunLog starts a session file named after session and the current
// time inside dir, creating dir if needed.
func NewRunLog(dir, session string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.json", session, time.Now().Format("20060102_150405"))
	rl := &RunLog{path: filepath.Join(dir, name)}
	if err := rl.flush(); err != nil {
		return nil, err
	}
	return rl, nil
}

// Path is the session file.
func (rl *RunLog) Path() string { return rl.path }

// Record appends r, stamping it if it carries no time.
func (rl *RunLog) Record(r RunRecord) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	rl.records = append(rl.records, r)
	return rl.flush()
}

func (rl *RunLog) flush() error {
	data, err := json.MarshalIndent(lo.Ternary(rl.records == nil, []RunRecord{}, rl.records), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run records: %w", err)
	}
	return os.WriteFile(rl.path, data, 0o644)
}

// LatestRunLog returns the most recently modified session file in dir.
func LatestRunLog(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return "", err
	}

	var latest string
	var latestTime time.Time
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = file
			latestTime = info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no run logs in %s", dir)
	}
	return latest, nil
}

// ReadRunLog loads a session file.
func ReadRunLog(path string) ([]RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []RunRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

// WriteRunSummary prints one line per record and the totals.
func WriteRunSummary(w io.Writer, records []RunRecord) error {
	var sb strings.Builder
	rule := strings.Repeat("=", 72)
	sb.WriteString(rule + "\n")

	for _, r := range records {
		shape := fmt.Sprintf("%dx%dx%d", r.N, r.M, r.L)
		switch r.Status {
		case StatusPass, StatusFail:
			fmt.Fprintf(&sb, "%-4s %-24s %-14s %8.2f GFLOPS  max rel %.2e\n",
				r.Status, r.Name, shape, r.KernelGFLOPS, r.MaxRelErr)
		default:
			fmt.Fprintf(&sb, "%-4s %-24s %-14s %s\n", "err", r.Name, shape, r.Error)
		}
	}

	counts := lo.CountValuesBy(records, func(r RunRecord) string { return r.Status })
	sb.WriteString(rule + "\n")
	fmt.Fprintf(&sb, "Total: %d | Passed: %d | Failed: %d | Errors: %d\n",
		len(records), counts[StatusPass], counts[StatusFail], counts[StatusErr])

	_, err := io.WriteString(w, sb.String())
	return err
}
