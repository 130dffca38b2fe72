// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract pulls one section out of converted text files. Each Rule
// pairs a pattern that recognises the section with a function that cuts it
// out; the first rule whose pattern matches a file decides its extract.
package extract

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/arxiv-harvester/internal/logctx"
)

const textExt = ".txt"

// Rule recognises a section with Match and cuts it out with Extract. An
// empty extract means the section could not be delimited.
type Rule struct {
	Name    string
	Match   *regexp.Regexp
	Extract func(text string) string
}

// Extractor applies rules in order.
type Extractor struct {
	Rules []Rule
}

// New returns an extractor with the given rules, or BackgroundRule when
// none are given.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = []Rule{BackgroundRule()}
	}
	return &Extractor{Rules: rules}
}

// Extract returns the extract of the first matching rule and that rule's
// name. ok is false when no rule matches.
func (e *Extractor) Extract(text string) (extract, rule string, ok bool) {
	for _, r := range e.Rules {
		if r.Match.MatchString(text) {
			return r.Extract(text), r.Name, true
		}
	}
	return "", "", false
}

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted int
	Skipped   int
	NoMatch   int
	Failed    int
}

// Total returns the number of files processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Skipped + s.NoMatch + s.Failed
}

// HasFailures reports whether any file failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// ExtractAll extracts every text file under srcDir into the same relative
// path under outDir. Files are visited in lexical order, subdirectories only
// when recursive is set. Files whose output is newer than the source are
// skipped; files with no match or an empty extract produce no output.
func (e *Extractor) ExtractAll(ctx context.Context, srcDir, outDir string, recursive bool, w io.Writer) (BatchSummary, error) {
	if w == nil {
		w = io.Discard
	}
	logger := logctx.From(ctx)
	var summary BatchSummary

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != srcDir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), textExt) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, rel)

		changed, err := hasChanged(path, outPath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", rel, err)
			summary.Failed++
			return nil
		}
		if !changed {
			fmt.Fprintf(w, "skipped %s\n", rel)
			summary.Skipped++
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", rel, err)
			summary.Failed++
			return nil
		}

		extract, rule, ok := e.Extract(string(data))
		if !ok || strings.TrimSpace(extract) == "" {
			logger.Debug("no section found", "file", rel, "matched", ok)
			summary.NoMatch++
			return nil
		}

		if err := writeExtract(outPath, extract); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", rel, err)
			summary.Failed++
			return nil
		}
		logger.Debug("extracted section", "file", rel, "rule", rule, "chars", len(extract))
		fmt.Fprintf(w, "extracted %s\n", rel)
		summary.Extracted++
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walking %s: %w", srcDir, err)
	}

	fmt.Fprintf(w, "\nBatch summary: %d extracted, %d skipped, %d without section, %d failed (total: %d)\n",
		summary.Extracted, summary.Skipped, summary.NoMatch, summary.Failed, summary.Total())
	return summary, nil
}

// hasChanged reports whether the source file is newer than the output file.
// It returns true if the output does not exist.
func hasChanged(srcPath, outPath string) (bool, error) {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return false, fmt.Errorf("stat source %s: %w", srcPath, err)
	}

	outInfo, err := os.Stat(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat output %s: %w", outPath, err)
	}

	return srcInfo.ModTime().After(outInfo.ModTime()), nil
}

func writeExtract(path, extract string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(extract), 0o644)
}

// romanPattern matches a well-formed roman numeral below 4000.
var romanPattern = regexp.MustCompile(`^M{0,3}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)

// backgroundHeading finds a numbered BACKGROUND heading, e.g. "2. BACKGROUND"
// or "II. BACKGROUND".
var backgroundHeading = regexp.MustCompile(`(?m)^[ \t]*(\d+|[IVXLCDM]+)[.][ \t]*BACKGROUND\b.*$`)

// BackgroundRule extracts the text between a numbered BACKGROUND heading and
// the heading numbered next in sequence.
func BackgroundRule() Rule {
	return Rule{
		Name:    "background",
		Match:   backgroundHeading,
		Extract: extractBackground,
	}
}

func extractBackground(text string) string {
	for _, m := range backgroundHeading.FindAllStringSubmatchIndex(text, -1) {
		number := text[m[2]:m[3]]
		next, ok := nextNumber(number)
		if !ok {
			continue
		}

		start := m[1]
		nextHeading := regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(next) + `[.][ \t]*[A-Z][ A-Z]*`)
		loc := nextHeading.FindStringIndex(text[start:])
		if loc == nil {
			return ""
		}
		return strings.TrimSpace(text[start : start+loc[0]])
	}
	return ""
}

// nextNumber returns the section number following number, arabic or roman.
func nextNumber(number string) (string, bool) {
	if n, err := strconv.Atoi(number); err == nil {
		return strconv.Itoa(n + 1), true
	}
	return IncrementRoman(number)
}

var romanValues = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

// IncrementRoman returns the roman numeral after rn. ok is false when rn is
// not a well-formed numeral or the result would exceed MMMCMXCIX.
func IncrementRoman(rn string) (string, bool) {
	if rn == "" || !romanPattern.MatchString(rn) {
		return "", false
	}
	n := parseRoman(rn) + 1
	if n >= 4000 {
		return "", false
	}
	return formatRoman(n), true
}

func parseRoman(rn string) int {
	total := 0
	for _, rv := range romanValues {
		for strings.HasPrefix(rn, rv.symbol) {
			total += rv.value
			rn = rn[len(rv.symbol):]
		}
	}
	return total
}

func formatRoman(n int) string {
	var b strings.Builder
	for _, rv := range romanValues {
		for n >= rv.value {
			b.WriteString(rv.symbol)
			n -= rv.value
		}
	}
	return b.String()
}
