package csvstream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/corpfetch/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "name,법인여부,사업자등록번호\n" +
	"A,법인,111\n" +
	"B,개인,222\n" +
	"C,법인,333\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestFilter_CorporationsOnly(t *testing.T) {
	in := writeFile(t, "company.csv", sampleCSV)
	out := filepath.Join(t.TempDir(), "filtered.csv")

	stats, err := Filter(context.Background(), in, out, "법인여부", Equals("법인"))
	require.NoError(t, err)

	assert.Equal(t, FilterStats{Scanned: 3, Retained: 2, Skipped: 0}, stats)
	assert.Equal(t, "name,법인여부,사업자등록번호\nA,법인,111\nC,법인,333\n", readFile(t, out))
}

func TestFilter_RetainedRowsSatisfyPredicate(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,kind,brno\n")
	for i := 0; i < 300; i++ {
		kind := []string{"법인", " 법인 ", "개인", "", "법인사업자"}[i%5]
		fmt.Fprintf(&b, "%d,%s,%d\n", i, kind, 1000+i)
	}
	b.WriteString("short\n")

	in := writeFile(t, "in.csv", b.String())
	out := filepath.Join(t.TempDir(), "out.csv")

	stats, err := Filter(context.Background(), in, out, "kind", Equals("법인"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(readFile(t, out), "\n"), "\n")
	require.Equal(t, "id,kind,brno", lines[0])
	assert.Equal(t, stats.Retained, len(lines)-1)
	assert.LessOrEqual(t, stats.Retained, stats.Scanned)
	assert.Equal(t, 120, stats.Retained)
	assert.Equal(t, 1, stats.Skipped)

	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		assert.Equal(t, "법인", strings.TrimSpace(fields[1]), line)
	}
}

func TestFilter_PreservesCRLF(t *testing.T) {
	in := writeFile(t, "crlf.csv", "a,법인여부\r\n1,법인\r\n2,개인\r\n3,법인")
	out := filepath.Join(t.TempDir(), "out.csv")

	_, err := Filter(context.Background(), in, out, "법인여부", Equals("법인"))
	require.NoError(t, err)
	assert.Equal(t, "a,법인여부\r\n1,법인\r\n3,법인\r\n", readFile(t, out))
}

func TestFilter_SkipsMalformedAndBlankRows(t *testing.T) {
	in := writeFile(t, "bad.csv", "a,b,법인여부\nx\n\n1,2,법인\n3,4\n")
	out := filepath.Join(t.TempDir(), "out.csv")

	stats, err := Filter(context.Background(), in, out, "법인여부", Equals("법인"))
	require.NoError(t, err)
	assert.Equal(t, FilterStats{Scanned: 3, Retained: 1, Skipped: 2}, stats)
	assert.Equal(t, "a,b,법인여부\n1,2,법인\n", readFile(t, out))
}

func TestFilter_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		cause   error
	}{
		{"empty file", "", errs.ErrEmptyFile},
		{"blank header", "\n1,2\n", errs.ErrEmptyFile},
		{"missing column", "a,b,c\n1,2,3\n", errs.ErrColumnNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := writeFile(t, "in.csv", tt.content)
			out := filepath.Join(t.TempDir(), "out.csv")

			_, err := Filter(context.Background(), in, out, "법인여부", Equals("법인"))
			var schemaErr *errs.SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.ErrorIs(t, err, tt.cause)

			_, statErr := os.Stat(out)
			assert.True(t, os.IsNotExist(statErr), "output must not be created")
		})
	}
}

func TestFilter_HeaderOnly(t *testing.T) {
	in := writeFile(t, "in.csv", "a,법인여부")
	out := filepath.Join(t.TempDir(), "out.csv")

	stats, err := Filter(context.Background(), in, out, "법인여부", Equals("법인"))
	require.NoError(t, err)
	assert.Zero(t, stats.Retained)
	assert.Equal(t, "a,법인여부\n", readFile(t, out))
}

func TestFilter_Cancelled(t *testing.T) {
	old := ContextCheckInterval
	ContextCheckInterval = 1
	defer func() { ContextCheckInterval = old }()

	in := writeFile(t, "in.csv", sampleCSV)
	out := filepath.Join(t.TempDir(), "out.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Filter(ctx, in, out, "법인여부", Equals("법인"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilter_NilPredicate(t *testing.T) {
	in := writeFile(t, "in.csv", sampleCSV)
	_, err := Filter(context.Background(), in, filepath.Join(t.TempDir(), "o.csv"), "법인여부", nil)
	require.Error(t, err)
}

func TestEnrich_AppendsLookedUpField(t *testing.T) {
	in := writeFile(t, "filtered.csv", "name,법인여부,사업자등록번호\nA,법인,111\nC,법인, 333 \nD,법인,999\n")
	out := filepath.Join(t.TempDir(), "enriched.csv")

	lookup := Lookup{"111": "C1", "333": "C2"}
	stats, err := Enrich(context.Background(), in, out, "사업자등록번호", lookup)
	require.NoError(t, err)

	assert.Equal(t, EnrichStats{Rows: 3, Matched: 2, Skipped: 0}, stats)
	assert.Equal(t,
		"name,법인여부,사업자등록번호\nA,법인,111,C1\nC,법인, 333 ,C2\nD,법인,999,\n",
		readFile(t, out))
}

func TestEnrich_OneExtraFieldPerRowHeaderUnchanged(t *testing.T) {
	content := "a,b,brno,d\n1,2,10,4\n5,6,20,\n7,8,30,x\n"
	in := writeFile(t, "in.csv", content)
	out := filepath.Join(t.TempDir(), "out.csv")

	_, err := Enrich(context.Background(), in, out, "brno", Lookup{"20": "Z"})
	require.NoError(t, err)

	inLines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	outLines := strings.Split(strings.TrimSuffix(readFile(t, out), "\n"), "\n")
	require.Len(t, outLines, len(inLines))

	assert.Equal(t, inLines[0], outLines[0])
	for i := 1; i < len(inLines); i++ {
		assert.Equal(t,
			len(strings.Split(inLines[i], ","))+1,
			len(strings.Split(outLines[i], ",")),
			"row %d", i)
	}
}

func TestEnrich_SkipsShortRows(t *testing.T) {
	in := writeFile(t, "in.csv", "a,brno\nonly\n1,10\n")
	out := filepath.Join(t.TempDir(), "out.csv")

	stats, err := Enrich(context.Background(), in, out, "brno", Lookup{"10": "X"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, "a,brno\n1,10,X\n", readFile(t, out))
}

func TestEnrich_MissingKeyColumn(t *testing.T) {
	in := writeFile(t, "in.csv", "a,b\n1,2\n")
	_, err := Enrich(context.Background(), in, filepath.Join(t.TempDir(), "o.csv"), "brno", nil)
	assert.ErrorIs(t, err, errs.ErrColumnNotFound)
}

func TestCollectKeys(t *testing.T) {
	in := writeFile(t, "in.csv", "name,brno\nA, 111\nB,222\nC,111\nD,\nshort\n")

	keys, err := CollectKeys(context.Background(), in, "brno")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"111": {}, "222": {}}, keys)

	_, err = CollectKeys(context.Background(), in, "crno")
	assert.ErrorIs(t, err, errs.ErrColumnNotFound)
}

func TestWalk(t *testing.T) {
	in := writeFile(t, "in.csv", "a,b\n1,2\n\n3,4,5\n")

	var rows [][]string
	err := Walk(context.Background(), in, func(header, fields []string) error {
		assert.Equal(t, []string{"a", "b"}, header)
		rows = append(rows, fields)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4", "5"}}, rows)

	empty := writeFile(t, "empty.csv", "")
	err = Walk(context.Background(), empty, func(_, _ []string) error { return nil })
	assert.ErrorIs(t, err, errs.ErrEmptyFile)
}
