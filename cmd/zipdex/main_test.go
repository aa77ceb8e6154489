// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/zipindex"
)

// writeArchive creates a small archive with a deflated and a stored entry.
func writeArchive(t *testing.T) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	fw, err := w.Create("docs/readme.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte("# hello\n"))
	require.NoError(t, err)

	fw, err = w.CreateHeader(&zip.FileHeader{Name: "raw.txt", Method: zip.Store})
	require.NoError(t, err)
	_, err = fw.Write([]byte("stored"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	name := filepath.Join(t.TempDir(), "test.zip")
	require.NoError(t, os.WriteFile(name, buf.Bytes(), 0644))
	return name
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestList(t *testing.T) {
	code, out, _ := runCLI(t, "list", writeArchive(t))
	require.Equal(t, zipindex.CodeOK, code)
	assert.Contains(t, out, "docs/readme.md")
	assert.Contains(t, out, "raw.txt")
	assert.Contains(t, out, "deflate")

	code, out, _ = runCLI(t, "list", "--glob", "*.txt", writeArchive(t))
	require.Equal(t, zipindex.CodeOK, code)
	assert.NotContains(t, out, "readme")
}

func TestCat(t *testing.T) {
	code, out, _ := runCLI(t, "cat", writeArchive(t), "docs/readme.md")
	require.Equal(t, zipindex.CodeOK, code)
	assert.Equal(t, "# hello\n", out)

	code, _, _ = runCLI(t, "cat", writeArchive(t), "missing")
	assert.Equal(t, zipindex.CodeEntryNotFound, code)
}

func TestDump(t *testing.T) {
	code, out, _ := runCLI(t, "dump", writeArchive(t), "raw.txt")
	require.Equal(t, zipindex.CodeOK, code)
	assert.Equal(t, "stored", out)
}

func TestExtract(t *testing.T) {
	archive := writeArchive(t)
	dest := t.TempDir()

	code, _, stderr := runCLI(t, "extract", archive, dest)
	require.Equal(t, zipindex.CodeOK, code, stderr)

	got, err := os.ReadFile(filepath.Join(dest, "docs", "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hello\n", string(got))

	code, _, _ = runCLI(t, "extract", archive, dest, "raw.txt")
	assert.Equal(t, zipindex.CodeIO, code, "existing files are never overwritten")

	code, _, _ = runCLI(t, "extract", archive, filepath.Join(dest, "missing"))
	assert.Equal(t, zipindex.CodeIO, code)
}

func TestRecover(t *testing.T) {
	archive := writeArchive(t)
	data, err := os.ReadFile(archive)
	require.NoError(t, err)

	// Drop the trailer so only recovery can read the archive.
	truncated := filepath.Join(t.TempDir(), "truncated.zip")
	require.NoError(t, os.WriteFile(truncated, data[:len(data)-22], 0644))

	code, _, _ := runCLI(t, "list", truncated)
	assert.Equal(t, zipindex.CodeEOCDNotFound, code)

	out := t.TempDir()
	code, stdout, stderr := runCLI(t, "recover", "-o", out, truncated)
	require.Equal(t, zipindex.CodeOK, code, stderr)
	assert.Contains(t, stdout, "central")

	raw, err := os.ReadFile(filepath.Join(out, "raw.txt"))
	require.NoError(t, err)
	assert.Equal(t, "stored", string(raw))
}

func TestArchivesReadFromAppFs(t *testing.T) {
	t.Setenv(envConfig, "")
	t.Setenv(envLogLevel, "")

	raw, err := os.ReadFile(writeArchive(t))
	require.NoError(t, err)

	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/in/test.zip", raw, 0644))
	require.NoError(t, mem.MkdirAll("/out", 0755))

	exec := func(args ...string) (string, error) {
		var stdout bytes.Buffer
		a := &app{fs: mem, stdout: &stdout}
		cmd := a.rootCommand()
		cmd.SetArgs(args)
		cmd.SetOut(&stdout)
		cmd.SetErr(io.Discard)
		err := cmd.Execute()
		return stdout.String(), err
	}

	out, err := exec("list", "/in/test.zip")
	require.NoError(t, err)
	assert.Contains(t, out, "docs/readme.md")

	_, err = exec("extract", "/in/test.zip", "/out")
	require.NoError(t, err)
	got, err := afero.ReadFile(mem, "/out/docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "# hello\n", string(got))

	out, err = exec("recover", "/in/test.zip")
	require.NoError(t, err)
	assert.Contains(t, out, "raw.txt")

	_, err = exec("list", "/in/missing.zip")
	assert.Equal(t, zipindex.CodeIO, zipindex.Code(err))
}

func TestCodes(t *testing.T) {
	code, out, _ := runCLI(t, "codes")
	require.Equal(t, zipindex.CodeOK, code)
	assert.Contains(t, out, "end of central directory not found")
	assert.Contains(t, out, "255")
}

func TestInvalidOption(t *testing.T) {
	code, _, _ := runCLI(t, "--filenames", "ebcdic", "list", writeArchive(t))
	assert.Equal(t, zipindex.CodeFatal, code)
}
