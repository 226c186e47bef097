package templates

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/vango-dev/isomorph/internal/errors"
)

// Config contains template variables.
type Config struct {
	// ProjectName is shown in generated comments.
	ProjectName string

	// Addr is the listen address written to .env.example.
	Addr string

	// Public is the directory stylesheets and the bundle are built from,
	// relative to the project root.
	Public string
}

// Template is a named set of files.
type Template struct {
	Name        string
	Description string

	// Files maps relative paths to text/template sources. Paths are
	// templates too, so "{{.Public}}/app.css" follows Config.Public.
	Files map[string]string
}

var templates = map[string]*Template{
	"counter": counterTemplate(),
	"full":    fullTemplate(),
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.New("E144").WithDetailf("template %q not found", name)
	}
	return tmpl, nil
}

// List returns all template names in order.
func List() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create renders the template into dir. Existing files are left alone
// unless overwrite is set. It returns the relative paths written.
func (t *Template) Create(dir string, cfg Config, overwrite bool) ([]string, error) {
	if cfg.Public == "" {
		cfg.Public = "public"
	}

	paths := make([]string, 0, len(t.Files))
	for p := range t.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var written []string
	for _, rawPath := range paths {
		relPath, err := execute("path:"+rawPath, rawPath, cfg)
		if err != nil {
			return written, err
		}
		content, err := execute(rawPath, t.Files[rawPath], cfg)
		if err != nil {
			return written, err
		}

		fullPath := filepath.Join(dir, filepath.FromSlash(string(relPath)))
		if !overwrite {
			if _, err := os.Stat(fullPath); err == nil {
				continue
			}
		}
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(fullPath, content, 0o644); err != nil {
			return written, err
		}
		written = append(written, string(relPath))
	}
	return written, nil
}

func execute(name, src string, cfg Config) ([]byte, error) {
	tmpl, err := template.New(name).Parse(src)
	if err != nil {
		return nil, errors.Newf(errors.CategoryCLI, "invalid template %s: %v", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return nil, errors.Newf(errors.CategoryCLI, "template execute error %s: %v", name, err)
	}
	return buf.Bytes(), nil
}

func counterTemplate() *Template {
	return &Template{
		Name:        "counter",
		Description: "Stylesheet for the counter page",
		Files: map[string]string{
			"{{.Public}}/counter.css": counterCSS,
		},
	}
}

func fullTemplate() *Template {
	return &Template{
		Name:        "full",
		Description: "Stylesheets for every application plus an environment file",
		Files: map[string]string{
			"{{.Public}}/counter.css": counterCSS,
			"{{.Public}}/race.css":    raceCSS,
			".env.example":            envExample,
		},
	}
}

const counterCSS = `/* {{.ProjectName}}: counter */
main.counter {
  font-family: system-ui, sans-serif;
  max-width: 20rem;
  margin: 4rem auto;
  text-align: center;
}

.counter .controls {
  display: flex;
  align-items: center;
  justify-content: center;
  gap: 1rem;
}

.counter .count {
  min-width: 3ch;
  font-size: 2rem;
  font-variant-numeric: tabular-nums;
}

.counter .status {
  color: #a15c00;
}
`

const raceCSS = `/* {{.ProjectName}}: race */
main.race {
  --tile: 3.5rem;
  font-family: system-ui, sans-serif;
  margin: 2rem auto;
  max-width: 48rem;
}

.race .boards {
  display: flex;
  gap: 2rem;
}

.race .board,
.race .target {
  position: relative;
  background: #222;
  border-radius: 0.5rem;
}

.race .board.mine {
  width: calc(var(--tile) * 5);
  height: calc(var(--tile) * 5);
}

.race .board.opponent {
  --tile: 1.5rem;
  width: calc(var(--tile) * 5);
  height: calc(var(--tile) * 5);
}

.race .target {
  --tile: 1.5rem;
  width: calc(var(--tile) * 3);
  height: calc(var(--tile) * 3);
}

.race .tile {
  position: absolute;
  top: calc(var(--row) * var(--tile));
  left: calc(var(--col) * var(--tile));
  width: calc(var(--tile) - 4px);
  height: calc(var(--tile) - 4px);
  margin: 2px;
  border-radius: 4px;
  transition: top 120ms ease, left 120ms ease;
}

.race .board.mine .tile {
  cursor: pointer;
}

.race .tile.white { background: #f5f5f5; }
.race .tile.yellow { background: #f7d51d; }
.race .tile.orange { background: #f08a24; }
.race .tile.red { background: #d7263d; }
.race .tile.green { background: #2e933c; }
.race .tile.blue { background: #1b4f9c; }
`

const envExample = `# {{.ProjectName}} environment overrides
ISOMORPH_ADDR={{.Addr}}
ISOMORPH_PUBLIC_DIR={{.Public}}
ISOMORPH_LOG_LEVEL=info
ISOMORPH_LOG_FORMAT=text

# Serve assets from S3 instead of the local build output.
# ISOMORPH_S3_BUCKET=
# ISOMORPH_S3_REGION=us-east-1
# AWS_ACCESS_KEY_ID=
# AWS_SECRET_ACCESS_KEY=
`
