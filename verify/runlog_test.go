package verify

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LynnColeArt/gudamm/matmul"
)

func TestNewRunRecord(t *testing.T) {
	timing := matmul.Timing{N: 16, M: 32, L: 16, Kernel: time.Millisecond, Total: 2 * time.Millisecond}

	r := NewRunRecord("synthetic", timing, &Result{Checked: 256, RelTol: DefaultRelTol, MaxRelErr: 1e-7}, nil)
	assert.Equal(t, StatusPass, r.Status)
	assert.Equal(t, int64(1_000_000), r.KernelNs)
	assert.InDelta(t, 2*16*32*16/1e-3/1e9, r.KernelGFLOPS, 1e-9)
	assert.InDelta(t, r.KernelGFLOPS/2, r.TotalGFLOPS, 1e-9)

	r = NewRunRecord("synthetic", timing, &Result{Checked: 256, Count: 3, RelTol: DefaultRelTol}, nil)
	assert.Equal(t, StatusFail, r.Status)
	assert.Equal(t, 3, r.Mismatches)

	r = NewRunRecord("synthetic", timing, nil, errors.New("out of memory"))
	assert.Equal(t, StatusErr, r.Status)
	assert.Equal(t, "out of memory", r.Error)
}

func TestRunLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	rl, err := NewRunLog(dir, "session")
	require.NoError(t, err)

	// The session file exists before anything is recorded
	records, err := ReadRunLog(rl.Path())
	require.NoError(t, err)
	assert.Empty(t, records)

	timing := matmul.Timing{N: 16, M: 16, L: 16, Kernel: time.Microsecond, Total: time.Millisecond}
	require.NoError(t, rl.Record(NewRunRecord("a", timing, &Result{Checked: 256, RelTol: DefaultRelTol}, nil)))
	require.NoError(t, rl.Record(NewRunRecord("b", timing, &Result{Checked: 256, Count: 1, RelTol: DefaultRelTol}, nil)))
	require.NoError(t, rl.Record(NewRunRecord("c", timing, nil, errors.New("boom"))))

	latest, err := LatestRunLog(dir)
	require.NoError(t, err)
	assert.Equal(t, rl.Path(), latest)

	records, err = ReadRunLog(latest)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "b", records[1].Name)
	assert.False(t, records[0].Timestamp.IsZero())

	var buf bytes.Buffer
	require.NoError(t, WriteRunSummary(&buf, records))
	assert.Contains(t, buf.String(), "16x16x16")
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "Total: 3 | Passed: 1 | Failed: 1 | Errors: 1")
}

func TestRunLogErrors(t *testing.T) {
	_, err := LatestRunLog(t.TempDir())
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = ReadRunLog(bad)
	assert.Error(t, err)
}
