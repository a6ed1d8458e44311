package csvstream

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Predicate decides whether a trimmed column value is kept.
type Predicate func(value string) bool

// Equals keeps values exactly equal to literal.
func Equals(literal string) Predicate {
	return func(value string) bool {
		return value == literal
	}
}

// FilterStats summarizes one Filter run.
type FilterStats struct {
	Scanned  int // non-blank data lines read
	Retained int // lines written after the header
	Skipped  int // lines too short to hold the filter column
}

// Filter copies the header of inputPath to outputPath, followed by every data
// line whose trimmed value in column satisfies keep. Retained lines are
// written byte-for-byte with the header's line ending.
//
// Fails with *errs.SchemaError when the input is empty or lacks column.
func Filter(ctx context.Context, inputPath, outputPath, column string, keep Predicate) (FilterStats, error) {
	var stats FilterStats
	if keep == nil {
		return stats, fmt.Errorf("filter %s: predicate is required", inputPath)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer in.Close()

	lr := newLineReader(in)
	hdr, err := readHeader(lr, inputPath, column)
	if err != nil {
		return stats, err
	}
	eol := lr.lineEnding()

	out, err := createSink(outputPath)
	if err != nil {
		return stats, err
	}

	if err := filterLines(ctx, lr, out, hdr, eol, keep, &stats); err != nil {
		out.Close()
		return stats, fmt.Errorf("filter %s: %w", inputPath, err)
	}
	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("write %s: %w", outputPath, err)
	}
	return stats, nil
}

func filterLines(ctx context.Context, lr *lineReader, out *fileSink, hdr header, eol string, keep Predicate, stats *FilterStats) error {
	if err := out.writeLine(hdr.line, eol); err != nil {
		return err
	}

	for lineNum := 2; ; lineNum++ {
		if err := checkContext(ctx, lineNum); err != nil {
			return err
		}

		line, err := lr.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.Scanned++

		fields := splitFields(line)
		if len(fields) <= hdr.index {
			stats.Skipped++
			continue
		}
		if !keep(strings.TrimSpace(fields[hdr.index])) {
			continue
		}

		if err := out.writeLine(line, eol); err != nil {
			return err
		}
		stats.Retained++
	}
}
