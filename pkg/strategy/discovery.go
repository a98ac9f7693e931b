// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package strategy discovers the strategy plugins shipped on the shared
// strategies volume. Plugins are Python classes deriving from IStrategy,
// annotated with dunder metadata fields the bot image evaluates at runtime.
// The controller only needs that metadata, so discovery reads the sources
// textually instead of loading them.
package strategy

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	ulog "github.com/coingro/coingro-controller/pkg/utils/log"
)

var log = ulog.Log.WithName("strategy")

// Metadata describes one discovered strategy plugin.
type Metadata struct {
	Name             string
	Category         string
	Tags             []string
	ShortDescription string
	LongDescription  string
}

var (
	classRe    = regexp.MustCompile(`(?m)^class\s+(\w+)\s*\([^)]*\bIStrategy\b[^)]*\)\s*:`)
	anyClassRe = regexp.MustCompile(`(?m)^class\s+\w+`)

	strategyNameRe = regexp.MustCompile(`__strategy_name__\s*=\s*["']([^"']*)["']`)
	categoryRe     = regexp.MustCompile(`__category__\s*=\s*["']([^"']*)["']`)
	tagsRe         = regexp.MustCompile(`__tags__\s*=\s*\[([^\]]*)\]`)
	tagItemRe      = regexp.MustCompile(`["']([^"']+)["']`)
	shortDescRe    = pyStringAssignment("__short_description__")
	longDescRe     = pyStringAssignment("__long_description__")
)

// pyStringAssignment matches `<name> = <python string>` with any of the four
// quoting styles, triple quotes spanning lines.
func pyStringAssignment(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)` + name + `\s*=\s*(?:"""(.*?)"""|'''(.*?)'''|"([^"]*)"|'([^']*)')`)
}

// Discover scans dir for strategy plugins and returns their metadata sorted
// by name. A missing directory yields an empty list: deployments without a
// strategies volume simply run no strategy bots.
func Discover(dir string, recursive bool) ([]Metadata, error) {
	files, err := listSources(dir, recursive)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			log.V(1).Info("Strategy directory does not exist", "directory", dir)
			return nil, nil
		}
		return nil, err
	}

	var strategies []Metadata
	seen := map[string]struct{}{}
	for _, file := range files {
		source, err := os.ReadFile(file)
		if err != nil {
			log.Error(err, "Could not read strategy file", "file", file)
			continue
		}
		for _, meta := range parseSource(string(source)) {
			if _, duplicate := seen[meta.Name]; duplicate {
				log.Info("Ignoring duplicate strategy", "strategy", meta.Name, "file", file)
				continue
			}
			seen[meta.Name] = struct{}{}
			strategies = append(strategies, meta)
		}
	}

	sort.Slice(strategies, func(i, j int) bool { return strategies[i].Name < strategies[j].Name })
	return strategies, nil
}

func listSources(dir string, recursive bool) ([]string, error) {
	var files []string
	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "could not read strategy directory %s", dir)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".py") {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
		return files, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".py") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not scan strategy directory %s", dir)
	}
	return files, nil
}

// parseSource extracts the metadata of every IStrategy subclass in source.
func parseSource(source string) []Metadata {
	var strategies []Metadata
	for _, match := range classRe.FindAllStringSubmatchIndex(source, -1) {
		className := source[match[2]:match[3]]
		body := classBody(source, match[1])

		meta := Metadata{Name: className}
		if m := strategyNameRe.FindStringSubmatch(body); m != nil && m[1] != "" {
			meta.Name = m[1]
		}
		if m := categoryRe.FindStringSubmatch(body); m != nil {
			meta.Category = m[1]
		}
		if m := tagsRe.FindStringSubmatch(body); m != nil {
			for _, item := range tagItemRe.FindAllStringSubmatch(m[1], -1) {
				meta.Tags = append(meta.Tags, item[1])
			}
		}
		meta.ShortDescription = firstGroup(shortDescRe.FindStringSubmatch(body))
		meta.LongDescription = strings.TrimSpace(firstGroup(longDescRe.FindStringSubmatch(body)))

		strategies = append(strategies, meta)
	}
	return strategies
}

// classBody returns the source from offset up to the next top-level class.
func classBody(source string, offset int) string {
	rest := source[offset:]
	if next := anyClassRe.FindStringIndex(rest); next != nil {
		return rest[:next[0]]
	}
	return rest
}

func firstGroup(match []string) string {
	for _, group := range match[1:] {
		if group != "" {
			return group
		}
	}
	return ""
}
