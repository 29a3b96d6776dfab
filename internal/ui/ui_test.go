package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinterWritesToStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(&out, &errOut)

	p.Success("schema %s is valid", "shop.tdal")
	p.Error("connection refused")
	p.Problems([]string{"model Product: duplicate field sku"})
	p.List([]string{"7 models", "3 enums"})
	p.Step(1, 2, "creating tables")

	assert.Contains(t, out.String(), "✓ schema shop.tdal is valid")
	assert.Contains(t, out.String(), "  • 7 models\n")
	assert.Contains(t, out.String(), "[1/2]")
	assert.NotContains(t, out.String(), "connection refused")
	assert.Contains(t, errOut.String(), "✗ connection refused")
	assert.Contains(t, errOut.String(), "duplicate field sku")
}

func TestTable(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, &out)

	require.NoError(t, p.Table([]string{"id", "sku"}, [][]string{{"1", "MUG"}, {"2", "CUP"}}))
	assert.Contains(t, out.String(), "sku")
	assert.Contains(t, out.String(), "MUG")
	assert.Contains(t, out.String(), "CUP")
}

func TestMarkdown(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, &out)

	require.NoError(t, p.Markdown("# Shop\n\n| field | type |\n|---|---|\n| sku | String |\n"))
	assert.Contains(t, out.String(), "Shop")
	assert.Contains(t, out.String(), "sku")
}

func TestDiff(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, &out)

	p.Diff("a\nb\nc", "a\nB\nc\nd")
	assert.Equal(t, "  a\n- b\n+ B\n  c\n+ d\n", out.String())
}
