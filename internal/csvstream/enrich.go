package csvstream

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Lookup maps a trimmed key column value to the field appended to its row.
type Lookup map[string]string

// EnrichStats summarizes one Enrich run.
type EnrichStats struct {
	Rows    int // data lines written
	Matched int // rows whose key had a lookup entry
	Skipped int // lines too short to hold the key column
}

// Enrich copies inputPath to outputPath, appending lookup[key] (or "") to
// every data line, where key is the trimmed value of keyColumn.
//
// The header is re-emitted unchanged, so the appended field has no label and
// data rows carry one more field than the header. Consumers that address
// columns by header position must account for the unlabeled trailing field.
func Enrich(ctx context.Context, inputPath, outputPath, keyColumn string, lookup Lookup) (EnrichStats, error) {
	var stats EnrichStats

	in, err := os.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer in.Close()

	lr := newLineReader(in)
	hdr, err := readHeader(lr, inputPath, keyColumn)
	if err != nil {
		return stats, err
	}
	eol := lr.lineEnding()

	out, err := createSink(outputPath)
	if err != nil {
		return stats, err
	}

	if err := enrichLines(ctx, lr, out, hdr, eol, lookup, &stats); err != nil {
		out.Close()
		return stats, fmt.Errorf("enrich %s: %w", inputPath, err)
	}
	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("write %s: %w", outputPath, err)
	}
	return stats, nil
}

func enrichLines(ctx context.Context, lr *lineReader, out *fileSink, hdr header, eol string, lookup Lookup, stats *EnrichStats) error {
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

		fields := splitFields(line)
		if len(fields) <= hdr.index {
			stats.Skipped++
			continue
		}

		value, ok := lookup[strings.TrimSpace(fields[hdr.index])]
		if ok {
			stats.Matched++
		}
		if err := out.writeLine(line+Delimiter+value, eol); err != nil {
			return err
		}
		stats.Rows++
	}
}

// CollectKeys returns the distinct trimmed values of keyColumn in path.
// Empty values and short rows are ignored.
func CollectKeys(ctx context.Context, path, keyColumn string) (map[string]struct{}, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	lr := newLineReader(in)
	hdr, err := readHeader(lr, path, keyColumn)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]struct{})
	for lineNum := 2; ; lineNum++ {
		if err := checkContext(ctx, lineNum); err != nil {
			return nil, err
		}

		line, err := lr.next()
		if err == io.EOF {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", path, lineNum, err)
		}

		fields := splitFields(line)
		if len(fields) <= hdr.index {
			continue
		}
		if key := strings.TrimSpace(fields[hdr.index]); key != "" {
			keys[key] = struct{}{}
		}
	}
}
