package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/weather/cmd/weather/console"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	console.SetOutput(&out, &errOut)
	t.Cleanup(func() { console.SetOutput(os.Stdout, os.Stderr) })
	code := run(append([]string{"weather"}, args...))
	return code, out.String(), errOut.String()
}

func TestRead_Sim(t *testing.T) {
	code, out, _ := runCLI(t, "read", "--adapter", "sim")
	require.Equal(t, 0, code)
	assert.Equal(t, "temp 77.14F, p 100653 Pa, hum 48.29 %\n", out)
}

func TestRead_SimCelsiusRaw(t *testing.T) {
	code, out, _ := runCLI(t, "read", "--adapter", "sim", "--unit", "C", "--raw")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "raw 65 5A C0 7E ED 00 73 3C (adc T 519888, P 415148, H 29500)\n")
	assert.Contains(t, out, "temp 25.08C, p 100653 Pa, hum 48.29 %\n")
}

func TestID_Sim(t *testing.T) {
	code, out, _ := runCLI(t, "id", "--adapter", "sim", "--address", "0x76")
	require.Equal(t, 0, code)
	assert.Equal(t, "0x76 chip id 0x60 (BME280)\n", out)
}

func TestRegs_Sim(t *testing.T) {
	code, out, _ := runCLI(t, "regs", "read", "--adapter", "sim", "0xD0")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "00000000  60")

	code, out, _ = runCLI(t, "regs", "write", "--yes", "--adapter", "sim", "0xF4", "25")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "wrote 1 bytes at 0xf4")
}

func TestRead_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bus:\n  adapter: ftdi\n"), 0o600))
	code, _, _ := runCLI(t, "read", "--config", path)
	assert.Equal(t, 1, code)
}

func TestRead_InvalidAddress(t *testing.T) {
	code, _, _ := runCLI(t, "id", "--adapter", "sim", "--address", "0x80")
	assert.Equal(t, 1, code)
}

func TestGlobalFlags(t *testing.T) {
	code, out, _ := runCLI(t, "--version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "weather version")

	code, out, _ = runCLI(t, "--verbose", "id", "--adapter", "sim")
	require.Equal(t, 0, code)
	assert.Equal(t, "0x77 chip id 0x60 (BME280)\n", out)

	code, _, _ = runCLI(t, "stream", "--help")
	assert.Equal(t, 0, code)
}
