package httpx

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Selectors that bypass the configured client (proxy, headers, per-host
// limit) or drop the caller's context.
var forbiddenHTTP = map[string]string{
	"DefaultClient": "use httpx.New",
	"Get":           "use httpx.New",
	"Head":          "use httpx.New",
	"Post":          "use httpx.New",
	"PostForm":      "use httpx.New",
	"NewRequest":    "use http.NewRequestWithContext",
}

func TestNoUnmanagedHTTPUsage(t *testing.T) {
	repoRoot := filepath.Join("..", "..", "..")
	fset := token.NewFileSet()
	var violations []string

	for _, dir := range []string{"internal", "cmd"} {
		root := filepath.Join(repoRoot, dir)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			file, err := parser.ParseFile(fset, path, nil, 0)
			if err != nil {
				return err
			}
			ast.Inspect(file, func(n ast.Node) bool {
				sel, ok := n.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				if ident, ok := sel.X.(*ast.Ident); !ok || ident.Name != "http" {
					return true
				}
				if hint, bad := forbiddenHTTP[sel.Sel.Name]; bad {
					violations = append(violations, fset.Position(sel.Pos()).String()+" http."+sel.Sel.Name+": "+hint)
				}
				return true
			})
			return nil
		})
		require.NoError(t, err, "scan %s", root)
	}

	sort.Strings(violations)
	require.Empty(t, violations, strings.Join(violations, "\n"))
}
