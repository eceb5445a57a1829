package domain_test

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modulePath = "github.com/reglet-dev/valbridge/"

// TestDomainHasNoOuterLayerImports keeps the domain free of the layers built on it.
func TestDomainHasNoOuterLayerImports(t *testing.T) {
	fset := token.NewFileSet()

	for _, pkg := range []string{"entities", "errors", "ports"} {
		files, err := filepath.Glob(filepath.Join(".", pkg, "*.go"))
		require.NoError(t, err)
		require.NotEmpty(t, files, "domain/%s should contain Go files", pkg)

		for _, file := range files {
			if strings.HasSuffix(file, "_test.go") {
				continue
			}
			checkFileImports(t, fset, file, pkg)
		}
	}
}

func checkFileImports(t *testing.T, fset *token.FileSet, filename, pkg string) {
	t.Helper()

	f, err := parser.ParseFile(fset, filename, nil, parser.ImportsOnly)
	require.NoError(t, err, "failed to parse %s", filename)

	for _, imp := range f.Imports {
		path := strings.Trim(imp.Path.Value, `"`)

		if strings.HasPrefix(path, modulePath) {
			assert.True(t, strings.HasPrefix(path, modulePath+"domain/"),
				"domain/%s (%s) imports outer package %s", pkg, filepath.Base(filename), path)
			continue
		}
		// Host values cross the domain as any, so the domain needs nothing
		// beyond the standard library.
		assert.False(t, strings.Contains(strings.SplitN(path, "/", 2)[0], "."),
			"domain/%s (%s) imports third-party package %s", pkg, filepath.Base(filename), path)
	}
}
