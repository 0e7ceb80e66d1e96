package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aptcat/engine/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeItem(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const validItemYAML = `
id: functional-001
dimension: functional
category: functional
alpha: 1.2
beta: 0.0
gamma: 0.1
input:
  text: "Summarize this passage."
evaluators:
  - kind: contains
    value: "summary"
`

func TestLoad_ParsesValidItem(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "functional-001.yaml", validItemYAML)

	items, err := catalog.Load(dir)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "functional-001", item.ID)
	assert.Equal(t, 1.2, item.Alpha)
	assert.Equal(t, 0.1, item.Gamma)
	assert.Equal(t, "Summarize this passage.", item.Input.Text)
	require.Len(t, item.Evaluators, 1)
	assert.Equal(t, "summary", item.Evaluators[0].Value)
}

func TestLoad_IgnoresNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "functional-001.yaml", validItemYAML)
	writeItem(t, dir, "README.md", "not an item")

	items, err := catalog.Load(dir)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestLoad_SortsByID(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "b.yaml", `
id: functional-002
dimension: functional
category: functional
alpha: 1
beta: 0
gamma: 0
input: {text: "b"}
evaluators: [{kind: contains, value: "x"}]
`)
	writeItem(t, dir, "a.yaml", `
id: functional-001
dimension: functional
category: functional
alpha: 1
beta: 0
gamma: 0
input: {text: "a"}
evaluators: [{kind: contains, value: "x"}]
`)

	items, err := catalog.Load(dir)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "functional-001", items[0].ID)
	assert.Equal(t, "functional-002", items[1].ID)
}

func TestLoad_RejectsInvalidDimension(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "bad.yaml", `
id: bad-001
dimension: not-a-dimension
category: functional
alpha: 1
beta: 0
gamma: 0
input: {text: "x"}
evaluators: [{kind: contains, value: "x"}]
`)

	_, err := catalog.Load(dir)
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveAlpha(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "bad.yaml", `
id: bad-001
dimension: functional
category: functional
alpha: 0
beta: 0
gamma: 0
input: {text: "x"}
evaluators: [{kind: contains, value: "x"}]
`)

	_, err := catalog.Load(dir)
	assert.Error(t, err)
}

func TestLoad_RejectsGammaOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "bad.yaml", `
id: bad-001
dimension: functional
category: functional
alpha: 1
beta: 0
gamma: 1.5
input: {text: "x"}
evaluators: [{kind: contains, value: "x"}]
`)

	_, err := catalog.Load(dir)
	assert.Error(t, err)
}

func TestLoad_RejectsMissingEvaluators(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "bad.yaml", `
id: bad-001
dimension: functional
category: functional
alpha: 1
beta: 0
gamma: 0
input: {text: "x"}
evaluators: []
`)

	_, err := catalog.Load(dir)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidEvaluatorKind(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "bad.yaml", `
id: bad-001
dimension: functional
category: functional
alpha: 1
beta: 0
gamma: 0
input: {text: "x"}
evaluators: [{kind: bogusKind, value: "x"}]
`)

	_, err := catalog.Load(dir)
	assert.Error(t, err)
}

func TestLoad_RejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeItem(t, dir, "a.yaml", validItemYAML)
	writeItem(t, dir, "b.yaml", validItemYAML)

	_, err := catalog.Load(dir)
	assert.Error(t, err)
}

func TestLoad_EmptyDirReturnsEmptySlice(t *testing.T) {
	dir := t.TempDir()
	items, err := catalog.Load(dir)
	require.NoError(t, err)
	assert.Empty(t, items)
}
