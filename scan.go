package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"synthmcp/config"
	"synthmcp/sysex"
)

// fileReport is every patch decoded from one .syx file.
type fileReport struct {
	Path     string
	Messages int
	Patches  []decoded
}

// dumpFile prints every message in path byte by byte, then what it decodes
// to.
func dumpFile(cfg *config.Config, path string) error {
	if path == "" {
		return errors.New("missing file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	msgs := sysex.Split(data)
	for i, msg := range msgs {
		sysex.Dump(os.Stdout, msg, fmt.Sprintf("%s message %d", filepath.Base(path), i))
	}
	printReport(fileReport{Path: path, Messages: len(msgs), Patches: decodeStream(cfg, msgs)})
	return nil
}

// scanDir decodes every .syx file under dir concurrently. Each file gets
// its own codecs.
func scanDir(cfg *config.Config, dir string) error {
	if dir == "" {
		dir = "."
	}
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".syx") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("Scanning %d files in %s", len(paths), dir)

	reports, err := scanFiles(context.Background(), cfg, paths)
	if err != nil {
		return err
	}
	for _, r := range reports {
		printReport(r)
	}
	return nil
}

func scanFiles(ctx context.Context, cfg *config.Config, paths []string) ([]fileReport, error) {
	reports := make([]fileReport, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			msgs := sysex.Split(data)
			reports[i] = fileReport{Path: path, Messages: len(msgs), Patches: decodeStream(cfg, msgs)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })
	return reports, nil
}

func printReport(r fileReport) {
	fmt.Printf("%s: %d messages, %d patches\n", r.Path, r.Messages, len(r.Patches))
	for _, p := range r.Patches {
		if p.Error != "" {
			fmt.Printf("  #%d %s: %s\n", p.Index, p.Family, p.Error)
			continue
		}
		fmt.Printf("  #%d %s %d/%d %q\n", p.Index, p.Family, p.Patch.Bank, p.Patch.Number, p.Patch.Name)
	}
}
