package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSchemaSpec_ParsesFieldDescriptionPairs(t *testing.T) {
	schema, err := parseSchemaSpec("cpf:CPF number,nome:full name")
	require.NoError(t, err)
	require.Len(t, schema, 2)
	require.Equal(t, "cpf", schema[0].Name)
	require.Equal(t, "CPF number", schema[0].Description)
	require.Equal(t, "nome", schema[1].Name)
	require.Equal(t, "full name", schema[1].Description)
}

func TestParseSchemaSpec_RejectsMissingDescription(t *testing.T) {
	_, err := parseSchemaSpec("cpf")
	require.Error(t, err)
}

func TestParseSchemaSpec_RejectsEmptySpec(t *testing.T) {
	_, err := parseSchemaSpec("")
	require.Error(t, err)
}

func TestParseSchemaSpec_DescriptionMayContainColons(t *testing.T) {
	schema, err := parseSchemaSpec("cpf:the field called cpf: a tax id")
	require.NoError(t, err)
	require.Equal(t, "the field called cpf: a tax id", schema[0].Description)
}

func TestCollectPDFs_FindsOnlyPDFFilesRecursively(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("nope"), 0o644))

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.PDF"), []byte("%PDF"), 0o644))

	files, err := collectPDFs(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestCollectPDFs_EmptyDirectoryReturnsNoFiles(t *testing.T) {
	files, err := collectPDFs(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, files)
}
