package handler

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
	"github.com/ressKim-io/trilingual-sentiment/internal/domain/lexicon"
	"github.com/ressKim-io/trilingual-sentiment/internal/usecase"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.New("").Funcs(template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}).ParseFS(templateFS, "templates/*.tmpl"))

var languageOptions = []struct {
	Value string
	Name  string
}{
	{"auto", "Detect language"},
	{string(entity.LanguageEnglish), "English"},
	{string(entity.LanguageArabic), "Arabic"},
	{string(entity.LanguageFrench), "French"},
}

type languageOption struct {
	Value    string
	Name     string
	Selected bool
}

type scoreBar struct {
	Label entity.Label
	Score float64
	Width float64
}

type pageData struct {
	Text      string
	Languages []languageOption
	Warning   string
	Error     string
	Result    *usecase.PredictionOutput
	Bars      []scoreBar
	JSON      string
}

// WebHandler serves the browser form
type WebHandler struct {
	predictor usecase.Predictor
}

// NewWebHandler creates a new web handler
func NewWebHandler(predictor usecase.Predictor) *WebHandler {
	return &WebHandler{predictor: predictor}
}

// Index handles GET /
func (h *WebHandler) Index(c *gin.Context) {
	h.render(c, http.StatusOK, newPageData("", "auto"))
}

// Analyze handles POST /
func (h *WebHandler) Analyze(c *gin.Context) {
	text := c.PostForm("text")
	hint := c.DefaultPostForm("language", "auto")
	data := newPageData(text, hint)

	if strings.TrimSpace(text) == "" {
		data.Warning = "Please enter some text to analyze."
		h.render(c, http.StatusOK, data)
		return
	}

	lang := string(lexicon.ResolveLanguage(text, hint))
	output, err := h.predictor.PredictDistribution(c.Request.Context(), text, lang)
	if err != nil {
		errResp := MapUsecaseError(err)
		_ = c.Error(err)
		data.Error = errResp.Message
		h.render(c, errResp.StatusCode, data)
		return
	}

	data.Result = output
	data.Bars = scoreBars(*output.Scores)
	if dump, err := json.MarshalIndent(output.Scores.Map(), "", "  "); err == nil {
		data.JSON = string(dump)
	}
	h.render(c, http.StatusOK, data)
}

func (h *WebHandler) render(c *gin.Context, status int, data *pageData) {
	c.Render(status, render.HTML{Template: pageTemplate, Name: "index", Data: data})
}

func newPageData(text, hint string) *pageData {
	hint = strings.ToLower(strings.TrimSpace(hint))
	options := make([]languageOption, len(languageOptions))
	for i, o := range languageOptions {
		options[i] = languageOption{Value: o.Value, Name: o.Name, Selected: o.Value == hint}
	}
	return &pageData{Text: text, Languages: options}
}

// scoreBars scales bars against the highest score with some headroom
func scoreBars(d entity.Distribution) []scoreBar {
	top := d.Best().Confidence * 1.2
	bars := make([]scoreBar, len(entity.Labels))
	for i, l := range entity.Labels {
		bars[i] = scoreBar{Label: l, Score: d.Get(l)}
		if top > 0 {
			bars[i].Width = d.Get(l) / top * 100
		}
	}
	return bars
}
