package handlers

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/deepfake-detector/internal/domain"
	"github.com/example/deepfake-detector/internal/history"
	"github.com/example/deepfake-detector/internal/session"
	"github.com/example/deepfake-detector/internal/theme"
	"github.com/example/deepfake-detector/internal/usecase"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

const pageName = "index.html.tmpl"

type themeOption struct {
	Value    string
	Label    string
	Selected bool
}

type resultView struct {
	ID         string
	Label      domain.Label
	Confidence string
	Color      string
}

type historyView struct {
	ID         string
	Label      domain.Label
	Confidence string
	Timestamp  string
}

type rainDrop struct {
	Left  int
	Delay float64
}

type pageView struct {
	CSS           template.CSS
	Themes        []themeOption
	Result        *resultView
	Error         string
	History       []historyView
	Summary       *usecase.SessionSummary
	Rain          []rainDrop
	MaxUploadSize int
}

// rain positions are fixed so the page renders identically for identical state.
var rain = func() []rainDrop {
	drops := make([]rainDrop, 0, 12)
	for i := 0; i < 12; i++ {
		drops = append(drops, rainDrop{Left: (i*37 + 5) % 100, Delay: float64(i%5) * 0.9})
	}
	return drops
}()

func parseThemeOrLight(s string) theme.Theme {
	t, err := theme.Parse(s)
	if err != nil {
		return theme.Light
	}
	return t
}

// resultColor highlights Deepfake verdicts with the primary colour and Real
// verdicts with the accent colour.
func resultColor(label domain.Label, p theme.Palette) string {
	if label == domain.LabelDeepfake {
		return p.Primary
	}
	return p.Accent
}

func (h *handler) renderPage(c *gin.Context, status int, resultID, errMessage string) {
	s, _ := session.Current(c)
	palette := s.Theme.Palette()
	ctx := c.Request.Context()

	view := pageView{
		CSS:           theme.Stylesheet(palette),
		Error:         errMessage,
		Rain:          rain,
		MaxUploadSize: MaxUploadSize >> 20,
	}
	for _, t := range theme.All {
		view.Themes = append(view.Themes, themeOption{Value: t.String(), Label: t.Label(), Selected: t == s.Theme})
	}

	if resultID != "" {
		entry, err := h.uc.Entry(ctx, s.ID, resultID)
		switch {
		case err == nil:
			view.Result = &resultView{
				ID:         entry.ID,
				Label:      entry.Result.Label,
				Confidence: entry.Result.ConfidenceText(),
				Color:      resultColor(entry.Result.Label, palette),
			}
		case !errors.Is(err, history.ErrNotFound):
			_ = c.Error(err)
		}
	}

	entries, err := h.uc.Recent(ctx, s.ID, history.DisplayLimit)
	if err != nil {
		_ = c.Error(err)
		if status == http.StatusOK {
			status = http.StatusInternalServerError
			view.Error = "Failed to load recent predictions."
		}
	}
	for _, entry := range entries {
		view.History = append(view.History, historyView{
			ID:         entry.ID,
			Label:      entry.Result.Label,
			Confidence: entry.Result.ShortConfidenceText(),
			Timestamp:  entry.Result.TimestampText(),
		})
	}

	if summary, err := h.uc.GetSessionSummary(ctx, s.ID); err == nil {
		view.Summary = summary
	} else {
		_ = c.Error(err)
	}

	c.HTML(status, pageName, view)
}
