package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/services"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func memoryEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ORG_STORAGE", "memory")
	t.Setenv("ORG_CACHE_BACKEND", "none")
	return dir
}

func TestTemplateThenValidate(t *testing.T) {
	dir := memoryEnv(t)
	path := filepath.Join(dir, "plantilla.csv")

	_, err := runCLI(t, "template", "--output", path)
	require.NoError(t, err)

	out, err := runCLI(t, "validate", "--file", path)
	require.NoError(t, err)

	var res validateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.Valid)
	require.NotNil(t, res.Report)
	require.Equal(t, 5, res.Report.Processed)
	require.Equal(t, 0, res.Report.Failed)
}

func TestTemplate_XLSXByDefault(t *testing.T) {
	dir := memoryEnv(t)
	path := filepath.Join(dir, "plantilla")

	_, err := runCLI(t, "template", "--output", path)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "PK", string(b[:2]))
}

func TestValidate_RowErrorsExitValidation(t *testing.T) {
	dir := memoryEnv(t)
	path := filepath.Join(dir, "org.csv")
	require.NoError(t, os.WriteFile(path, []byte("id_puesto,nombre_puesto,departamento\nCEO,Director,Finance\n,Sin codigo,Finance\n"), 0o644))

	out, err := runCLI(t, "validate", "--file", path)
	require.Error(t, err)
	require.Equal(t, exitValidation, exitCode(err))

	var res validateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.False(t, res.Valid)
	require.Equal(t, 1, res.Report.Failed)
}

func TestValidate_PolicyRejection(t *testing.T) {
	dir := memoryEnv(t)
	path := filepath.Join(dir, "org.exe")
	require.NoError(t, os.WriteFile(path, []byte("id_puesto\n"), 0o644))

	out, err := runCLI(t, "validate", "--file", path)
	require.Equal(t, exitValidation, exitCode(err))

	var res validateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Issues, 1)
	require.Equal(t, services.IssueExtension, res.Issues[0].Code)
	require.Nil(t, res.Report)
}

func TestImport_DryRun(t *testing.T) {
	dir := memoryEnv(t)
	path := filepath.Join(dir, "finanzas.csv")
	require.NoError(t, os.WriteFile(path, []byte("id_puesto,nombre_puesto,departamento,id_jefe\nCFO,Director Financiero,Finanzas,\nAUD,Auditor,Finanzas,CFO\n"), 0o644))

	out, err := runCLI(t, "import", "--file", path, "--department", "Finanzas", "--actor", uuid.NewString(), "--dry-run")
	require.NoError(t, err)

	var res importResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.DryRun)
	require.Nil(t, res.ChartID)
	require.Equal(t, 2, res.Positions)
	require.Equal(t, 2, res.Report.Succeeded)
}

func TestImport_MemoryStorageStoresChart(t *testing.T) {
	dir := memoryEnv(t)
	path := filepath.Join(dir, "finanzas.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"positions":[{"id":"CFO","title":"Director Financiero","department":"Finanzas"}]}`), 0o644))

	out, err := runCLI(t, "import", "--file", path, "--department", "Finanzas", "--actor", uuid.NewString())
	require.NoError(t, err)

	var res importResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.ChartID)
	require.NotNil(t, res.ImportLogID)
	require.Equal(t, "1.0", res.Version)
}

func TestUsageErrors(t *testing.T) {
	memoryEnv(t)

	_, err := runCLI(t, "import", "--file", "x.csv", "--department", "Finanzas", "--actor", "nope")
	require.Equal(t, exitUsage, exitCode(err))

	_, err = runCLI(t, "export", "--chart", uuid.NewString(), "--format", "pdf", "--output", "-")
	require.Equal(t, exitUsage, exitCode(err))

	_, err = runCLI(t, "template")
	require.Equal(t, exitUsage, exitCode(err))
}

func TestExport_MissingChartIsValidation(t *testing.T) {
	memoryEnv(t)

	_, err := runCLI(t, "export", "--chart", uuid.NewString(), "--output", "-")
	require.Error(t, err)
	require.Equal(t, exitValidation, exitCode(err))
}

func TestMigrate_Print(t *testing.T) {
	memoryEnv(t)

	out, err := runCLI(t, "migrate", "--print")
	require.NoError(t, err)
	require.Contains(t, out, "CREATE TABLE")
}
