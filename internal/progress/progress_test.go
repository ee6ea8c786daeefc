package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporterCountsWithoutOutput(t *testing.T) {
	r := NewReporter("a.txt", 1000, nil)

	n, err := io.Copy(r, strings.NewReader(strings.Repeat("x", 400)))
	assert.NoError(t, err)
	assert.Equal(t, int64(400), n)

	transferred, percent, elapsed := r.GetCurrentStats()
	assert.Equal(t, int64(400), transferred)
	assert.InDelta(t, 40.0, percent, 0.001)
	assert.GreaterOrEqual(t, elapsed.Nanoseconds(), int64(0))

	// no bar to finish
	r.Finish(true)
	r.Finish(false)
}

func TestReporterRendersBar(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter("b.txt", 10, &out)

	assert.NotNil(t, r.bar)

	n, err := r.Write([]byte("0123456789"))
	assert.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.NotPanics(t, func() { r.Finish(true) })

	assert.Equal(t, int64(10), r.stats.TransferredBytes.Load())
}

func TestReporterFailedTransfer(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter("c.txt", 100, &out)

	r.Write(make([]byte, 30))
	assert.NotPanics(t, func() { r.Finish(false) })

	transferred, percent, _ := r.GetCurrentStats()
	assert.Equal(t, int64(30), transferred)
	assert.InDelta(t, 30.0, percent, 0.001)
}

func TestReporterZeroTotal(t *testing.T) {
	r := NewReporter("empty.dat", 0, nil)

	_, percent, _ := r.GetCurrentStats()
	assert.Equal(t, 100.0, percent)
}

func TestConsoleDisabled(t *testing.T) {
	assert.Nil(t, Console(false))
}
