package builder

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"text/template"

	"github.com/helix-datasets/blind-helix/internal/library"
)

// GlueFile is the generated source file name.
const GlueFile = "main.c"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether name can be referenced from glue source.
// Versioned symbols such as "memcpy@GLIBC_2.2.5" cannot.
func IsIdentifier(name string) bool {
	return identifier.MatchString(name)
}

var glueTemplate = template.Must(template.New("glue").Parse(`/* Generated by blind-helix. */
{{range .Externs}}extern void *{{.}};
{{end}}
int main(void) {
{{range .Calls}}    ((void (*)()){{.}})();
{{end}}    return 0;
}
`))

// Glue generates the C source that declares every component function as an
// external symbol and calls each one through a function pointer. Repeated
// functions are declared once and called once per occurrence.
func Glue(components []library.Component) (string, error) {
	if len(components) == 0 {
		return "", errors.New("no components to build")
	}

	data := struct {
		Externs []string
		Calls   []string
	}{}

	declared := make(map[string]struct{}, len(components))
	for _, c := range components {
		if !IsIdentifier(c.Function) {
			return "", fmt.Errorf("function %q is not a valid C identifier", c.Function)
		}
		if _, ok := declared[c.Function]; !ok {
			declared[c.Function] = struct{}{}
			data.Externs = append(data.Externs, c.Function)
		}
		data.Calls = append(data.Calls, c.Function)
	}

	var buf bytes.Buffer
	if err := glueTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render glue source: %w", err)
	}
	return buf.String(), nil
}

// Libraries returns the distinct library paths of components, in first-use
// order.
func Libraries(components []library.Component) []string {
	var paths []string
	seen := make(map[string]struct{}, len(components))
	for _, c := range components {
		if c.Path == "" {
			continue
		}
		if _, ok := seen[c.Path]; ok {
			continue
		}
		seen[c.Path] = struct{}{}
		paths = append(paths, c.Path)
	}
	return paths
}
