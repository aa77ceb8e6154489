// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command zipdex lists, extracts and recovers ZIP archives.
//
// The process exit status is the stable error code of the failure, see
// "zipdex codes".
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lemon4ksan/zipindex"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "zipdex: load .env:", err)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries state shared by all subcommands.
type app struct {
	configPath string
	flags      Config
	cfg        Config
	log        *logrus.Logger
	fs         afero.Fs
	stdout     io.Writer
}

// run executes the command line and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{fs: afero.NewOsFs(), stdout: stdout}

	cmd := a.rootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		if a.log != nil {
			a.log.WithError(err).WithField("code", zipindex.Code(err)).Error("command failed")
		} else {
			fmt.Fprintln(stderr, "zipdex:", err)
		}
		return zipindex.Code(err)
	}
	return zipindex.CodeOK
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "zipdex",
		Short:             "Index, extract and recover ZIP archives",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to a YAML configuration file (default $"+envConfig+")")
	pf.StringVar(&a.flags.EOCDScan, "eocd-scan", "", "End of central directory search: tail or forward")
	pf.StringVar(&a.flags.Filenames, "filenames", "", "Filename decoding: strict, cp437 or lossy")
	pf.StringVar(&a.flags.Directories, "directories", "", "Directory detection: size or attributes")
	pf.IntVar(&a.flags.Workers, "workers", 0, "Concurrent extraction workers (default GOMAXPROCS)")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "Log level (default $"+envLogLevel+" or warning)")

	cmd.AddCommand(
		a.listCommand(),
		a.catCommand(),
		a.dumpCommand(),
		a.extractCommand(),
		a.recoverCommand(),
		a.codesCommand(),
	)
	return cmd
}

// setup merges configuration file, environment and flags, in increasing precedence.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}

	if a.flags.EOCDScan != "" {
		cfg.EOCDScan = a.flags.EOCDScan
	}
	if a.flags.Filenames != "" {
		cfg.Filenames = a.flags.Filenames
	}
	if a.flags.Directories != "" {
		cfg.Directories = a.flags.Directories
	}
	if a.flags.Workers > 0 {
		cfg.Workers = a.flags.Workers
	}
	if a.flags.LogLevel != "" {
		cfg.LogLevel = a.flags.LogLevel
	}

	if a.log, err = newLogger(cmd.Name(), cfg.LogLevel); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) options() ([]zipindex.Option, error) {
	opts, err := a.cfg.options()
	if err != nil {
		return nil, err
	}
	return append(opts, zipindex.WithLogger(a.log), zipindex.WithFs(a.fs)), nil
}

// open indexes an archive read from the same filesystem extraction writes to.
func (a *app) open(name string) (*zipindex.Reader, error) {
	opts, err := a.options()
	if err != nil {
		return nil, err
	}

	f, err := a.fs.Open(name)
	if err != nil {
		return nil, err
	}
	r, err := zipindex.NewReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (a *app) listCommand() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "list ARCHIVE",
		Short: "List archive entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			entries := r.List()
			if pattern != "" {
				if entries, err = r.Index().Glob(pattern); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tSIZE\tCOMPRESSED\tMODIFIED\tNAME")
			for _, e := range entries {
				name := e.Name
				if e.IsDir() {
					name = e.Key() + "/"
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", e.Method, e.UncompressedSize, e.CompressedSize, e.ModTime().Format("2006-01-02 15:04:05"), name)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&pattern, "glob", "", "Only list entries matching a path.Match pattern")
	return cmd
}

func (a *app) catCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat ARCHIVE ENTRY",
		Short: "Write the decompressed content of an entry to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			e, err := r.Entry(args[1])
			if err != nil {
				return err
			}

			codecs, release, err := a.cfg.Codecs.codecs()
			if err != nil {
				return err
			}
			defer release()

			var codec zipindex.Codec
			for _, c := range codecs {
				if c.Method() == e.Method {
					codec = c
				}
			}
			if codec == nil {
				return fmt.Errorf("%w: %s uses %s", zipindex.ErrAlgorithm, e.Name, e.Method)
			}

			rc, err := r.OpenEntry(args[1], codec)
			if err != nil {
				return err
			}
			if _, err := io.Copy(a.stdout, rc); err != nil {
				rc.Close()
				return err
			}
			return rc.Close()
		},
	}
}

func (a *app) dumpCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "dump ARCHIVE ENTRY",
		Short: "Write the stored, still compressed payload of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			raw, err := r.RawBytes(args[1])
			if err != nil {
				return err
			}
			if output != "" {
				return afero.WriteFile(a.fs, output, raw, 0644)
			}
			_, err = a.stdout.Write(raw)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the payload to a file instead of stdout")
	return cmd
}

func (a *app) extractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract ARCHIVE DEST [ENTRY...]",
		Short: "Extract the archive, or the named entries, below an existing directory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			codecs, release, err := a.cfg.Codecs.codecs()
			if err != nil {
				return err
			}
			defer release()

			dest, names := args[1], args[2:]
			if len(names) == 0 {
				return r.ExtractAllWithContext(cmd.Context(), dest, codecs...)
			}

			byMethod := make(map[zipindex.CompressionMethod]zipindex.Codec)
			for _, c := range codecs {
				byMethod[c.Method()] = c
			}
			for _, name := range names {
				e, err := r.Entry(name)
				if err != nil {
					return err
				}
				codec, ok := byMethod[e.Method]
				if !ok && !e.IsDir() {
					return fmt.Errorf("%w: %s uses %s", zipindex.ErrAlgorithm, e.Name, e.Method)
				}
				if err := r.ExtractWithContext(cmd.Context(), name, dest, codec); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) recoverCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "recover ARCHIVE",
		Short: "Scan a damaged archive for every recoverable record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}

			f, err := a.fs.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			idx, err := zipindex.IntensiveIndexArchive(f, opts...)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tOFFSET\tMETHOD\tCOMPRESSED\tNAME")
			for _, key := range idx.Keys() {
				re, _ := idx.Get(key)
				switch v := re.(type) {
				case *zipindex.Entry:
					fmt.Fprintf(w, "central\t%d\t%s\t%d\t%s\n", v.LocalHeaderOffset, v.Method, v.CompressedSize, v.Name)
				case *zipindex.LocalFileHeader:
					fmt.Fprintf(w, "local\t%d\t%s\t%d\t%s\n", v.Offset, v.Method, v.CompressedSize, v.Name)
				}
			}
			for _, end := range idx.Trailers() {
				fmt.Fprintf(w, "trailer\t%d\t-\t-\t%d entries\n", end.Offset, end.TotalEntries)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if output == "" {
				return nil
			}
			return a.dumpRecovered(f, idx, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write every recovered payload below this directory")
	return cmd
}

// dumpRecovered writes the raw payload of every recovered path below dir.
// Records whose payload cannot be read are logged and skipped.
func (a *app) dumpRecovered(src io.ReadSeeker, idx *zipindex.RecoveryIndex, dir string) error {
	for _, key := range idx.Keys() {
		rel := filepath.FromSlash(key)
		if !filepath.IsLocal(rel) {
			a.log.WithField("name", key).Warn("skipping insecure path")
			continue
		}

		re, _ := idx.Get(key)
		raw, err := zipindex.DumpRecovered(src, re)
		if err != nil {
			a.log.WithError(err).WithField("name", key).Warn("skipping unreadable payload")
			continue
		}

		target := filepath.Join(dir, rel)
		if err := a.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := afero.WriteFile(a.fs, target, raw, 0644); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) codesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "Print the stable error codes used as exit status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, code := range zipindex.Codes() {
				fmt.Fprintf(w, "%d\t%s\n", code, zipindex.CodeText(code))
			}
			return w.Flush()
		},
	}
}
