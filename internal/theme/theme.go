package theme

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
)

// Theme selects one of the two palettes.
type Theme int

const (
	Light Theme = iota
	Dark
)

// All lists the themes in selector order.
var All = []Theme{Light, Dark}

// Palette maps semantic colour roles to CSS colours.
type Palette struct {
	Primary             string
	Background          string
	SecondaryBackground string
	Text                string
	BoxBackground       string
	Accent              string
}

var palettes = [...]Palette{
	Light: {
		Primary:             "#2563eb",
		Background:          "#f8fafc",
		SecondaryBackground: "#e0e7ef",
		Text:                "#1e293b",
		BoxBackground:       "#ffffff",
		Accent:              "#38bdf8",
	},
	Dark: {
		Primary:             "#38bdf8",
		Background:          "#0f172a",
		SecondaryBackground: "#1e293b",
		Text:                "#f1f5f9",
		BoxBackground:       "#1e293b",
		Accent:              "#2563eb",
	},
}

func (t Theme) String() string {
	if t == Dark {
		return "Dark"
	}
	return "Light"
}

// Label is the selector caption.
func (t Theme) Label() string {
	if t == Dark {
		return "🌙 Dark"
	}
	return "🌞 Light"
}

// Palette returns the colours for t. Unknown values fall back to Light.
func (t Theme) Palette() Palette {
	if t < Light || t > Dark {
		return palettes[Light]
	}
	return palettes[t]
}

// Parse accepts "Light" or "Dark" (case-insensitive).
func Parse(s string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return Light, nil
	case "dark":
		return Dark, nil
	}
	return Light, fmt.Errorf("unknown theme %q", s)
}

var stylesheet = texttemplate.Must(texttemplate.New("css").Parse(`
html, body {
    background-color: {{.Background}};
    color: {{.Text}};
    font-family: 'Segoe UI', sans-serif;
    margin: 0;
}
a { color: {{.Primary}}; }
.layout { display: flex; min-height: 100vh; }
.sidebar {
    width: 280px;
    background-color: {{.SecondaryBackground}};
    padding: 1.5em;
}
.main { flex: 1; padding: 1.5em 3em 5em; position: relative; overflow: hidden; }
.title {
    text-align: center;
    font-size: 2.5em;
    color: {{.Primary}};
    margin-bottom: 0.2em;
    font-weight: bold;
}
.subtitle {
    text-align: center;
    color: {{.Accent}};
    font-size: 1.2em;
    margin-bottom: 1em;
}
.box {
    background-color: {{.BoxBackground}};
    padding: 1.5em;
    border-radius: 12px;
    border-left: 6px solid {{.Primary}};
    box-shadow: 0 2px 12px rgba(0,0,0,0.1);
    margin-top: 1.5em;
}
.info, .success {
    background-color: {{.BoxBackground}};
    border-radius: 8px;
    padding: 1em;
}
.success { border-left: 4px solid {{.Accent}}; }
.error { color: #dc2626; font-weight: bold; }
.button {
    background-color: {{.Primary}};
    color: #fff;
    border: none;
    border-radius: 8px;
    padding: 0.6em 1.2em;
    text-decoration: none;
    cursor: pointer;
    display: inline-block;
    margin-top: 1em;
}
.theme-picker { text-align: right; }
.uploaded { margin: 1em 0; text-align: center; }
.uploaded img { max-width: 100%; height: auto; border-radius: 8px; }
.uploaded figcaption { color: {{.Text}}; font-size: 0.9em; }
.gallery { display: grid; grid-template-columns: repeat(5, 150px); gap: 1em; }
.history-caption {
    font-size: 0.9em;
    text-align: center;
    color: {{.Text}};
    white-space: pre-line;
}
.spinner { display: none; color: {{.Accent}}; margin-top: 1em; }
.spinner.active { display: block; }
.rain {
    position: absolute;
    top: -2em;
    font-size: 20px;
    animation: fall 5s linear infinite;
    pointer-events: none;
}
@keyframes fall { to { transform: translateY(110vh); } }
.credit-bar {
    position: fixed;
    bottom: 0; left: 50%;
    transform: translateX(-50%);
    background-color: {{.Primary}};
    color: #fff;
    padding: 8px 20px;
    font-size: 0.9em;
    border-radius: 10px 10px 0 0;
}
`))

// Stylesheet renders the page CSS for p.
func Stylesheet(p Palette) template.CSS {
	var buf bytes.Buffer
	if err := stylesheet.Execute(&buf, p); err != nil {
		// Palette has only string fields, so execution cannot fail.
		panic(err)
	}
	return template.CSS(buf.String())
}
