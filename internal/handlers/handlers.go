package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/deepfake-detector/internal/history"
	"github.com/example/deepfake-detector/internal/imageprocessor"
	"github.com/example/deepfake-detector/internal/report"
	"github.com/example/deepfake-detector/internal/session"
	"github.com/example/deepfake-detector/internal/usecase"
)

// MaxUploadSize is the largest accepted image upload.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers on top of
// MaxUploadSize before the body reader cuts the request off.
const multipartOverhead = 512 << 10

var allowedContentTypes = map[string]bool{
	"image/jpeg":  true,
	"image/jpg":   true,
	"image/pjpeg": true,
	"image/png":   true,
}

// uploadError carries the HTTP status for a rejected upload.
type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

type handler struct {
	uc       *usecase.PredictionUseCase
	sessions *session.Manager
}

// RegisterRoutes wires the page, the report download and the JSON API to the
// Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.PredictionUseCase, sessions *session.Manager) {
	router.SetHTMLTemplate(pageTemplate)

	h := &handler{uc: uc, sessions: sessions}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	app := router.Group("/", sessions.Middleware())
	app.GET("/", h.index)
	app.POST("/analyze", h.analyze)
	app.POST("/theme", h.setTheme)
	app.POST("/session/end", h.endSession)
	app.GET("/report/:id", h.downloadReport)
	app.GET("/thumbnails/:id", h.thumbnail)
	app.GET("/images/:id", h.preview)

	api := app.Group("/api")
	api.POST("/predict", h.apiPredict)
	api.GET("/history", h.apiHistory)
	api.GET("/history/summary", h.apiSummary)
}

func (h *handler) index(c *gin.Context) {
	h.renderPage(c, http.StatusOK, c.Query("result"), "")
}

func (h *handler) analyze(c *gin.Context) {
	data, err := readUpload(c)
	if err != nil {
		var upErr *uploadError
		if errors.As(err, &upErr) {
			h.renderPage(c, upErr.status, "", upErr.message)
			return
		}
		h.renderPage(c, http.StatusInternalServerError, "", "Failed to read the upload.")
		return
	}

	s, _ := session.Current(c)
	entry, err := h.uc.Analyze(c.Request.Context(), s.ID, data)
	if err != nil {
		_ = c.Error(err)
		status, message := analysisFailure(err)
		h.renderPage(c, status, "", message)
		return
	}

	c.Redirect(http.StatusSeeOther, "/?"+url.Values{"result": {entry.ID}}.Encode())
}

type themeForm struct {
	Theme  string `form:"theme" binding:"required,oneof=Light Dark"`
	Result string `form:"result"`
}

func (h *handler) setTheme(c *gin.Context) {
	var form themeForm
	if err := c.ShouldBind(&form); err != nil {
		h.renderPage(c, http.StatusBadRequest, "", "Unknown theme.")
		return
	}

	s, _ := session.Current(c)
	s.Theme = parseThemeOrLight(form.Theme)
	if err := h.sessions.Save(c, s); err != nil {
		_ = c.Error(err)
		h.renderPage(c, http.StatusInternalServerError, "", "Failed to update the theme.")
		return
	}

	target := "/"
	if form.Result != "" {
		target += "?" + url.Values{"result": {form.Result}}.Encode()
	}
	c.Redirect(http.StatusSeeOther, target)
}

func (h *handler) endSession(c *gin.Context) {
	s, _ := session.Current(c)
	if err := h.uc.EndSession(c.Request.Context(), s.ID); err != nil {
		_ = c.Error(err)
		h.renderPage(c, http.StatusInternalServerError, "", "Failed to end the session.")
		return
	}
	h.sessions.End(c)
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) downloadReport(c *gin.Context) {
	s, _ := session.Current(c)
	doc, err := h.uc.Report(c.Request.Context(), s.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render report"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename))
	c.Data(http.StatusOK, report.ContentType, doc)
}

func (h *handler) thumbnail(c *gin.Context) {
	h.serveImage(c, "image/png", func(entry history.Entry) []byte { return entry.Thumbnail })
}

func (h *handler) preview(c *gin.Context) {
	h.serveImage(c, imageprocessor.PreviewContentType, func(entry history.Entry) []byte { return entry.Preview })
}

// serveImage writes one of the images stored with a session's history entry.
func (h *handler) serveImage(c *gin.Context, contentType string, pick func(history.Entry) []byte) {
	s, _ := session.Current(c)
	entry, err := h.uc.Entry(c.Request.Context(), s.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}
	data := pick(entry)
	if len(data) == 0 {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, contentType, data)
}

func (h *handler) apiPredict(c *gin.Context) {
	data, err := readUpload(c)
	if err != nil {
		var upErr *uploadError
		if errors.As(err, &upErr) {
			c.JSON(upErr.status, gin.H{"error": upErr.message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	s, _ := session.Current(c)
	entry, err := h.uc.Analyze(c.Request.Context(), s.ID, data)
	if err != nil {
		_ = c.Error(err)
		status, message := analysisFailure(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, entryJSON(*entry))
}

func (h *handler) apiHistory(c *gin.Context) {
	n := history.DisplayLimit
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a non-negative integer"})
			return
		}
		n = parsed
	}

	s, _ := session.Current(c)
	entries, err := h.uc.Recent(c.Request.Context(), s.ID, n)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entryJSON(entry))
	}
	c.JSON(http.StatusOK, gin.H{"entries": items})
}

func (h *handler) apiSummary(c *gin.Context) {
	s, _ := session.Current(c)
	summary, err := h.uc.GetSessionSummary(c.Request.Context(), s.ID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarise history"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func entryJSON(entry history.Entry) gin.H {
	return gin.H{
		"id":              entry.ID,
		"label":           entry.Result.Label,
		"confidence":      entry.Result.Confidence,
		"confidence_text": entry.Result.ConfidenceText(),
		"timestamp":       entry.Result.TimestampText(),
		"report_url":      "/report/" + entry.ID,
		"thumbnail_url":   "/thumbnails/" + entry.ID,
		"image_url":       "/images/" + entry.ID,
	}
}

func analysisFailure(err error) (int, string) {
	if errors.Is(err, usecase.ErrInvalidImage) {
		return http.StatusBadRequest, "Unsupported or corrupt image. Please upload a JPEG or PNG file."
	}
	return http.StatusInternalServerError, "Analysis failed. Please try again."
}

// readUpload extracts the "image" form file, enforcing the size limit and the
// JPEG/PNG content types.
func readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: "image exceeds the 10 MB limit"}
		}
		return nil, &uploadError{status: http.StatusBadRequest, message: "image file is required"}
	}

	if file.Size > MaxUploadSize {
		return nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: "image exceeds the 10 MB limit"}
	}
	if !allowedContentType(file) {
		return nil, &uploadError{status: http.StatusUnsupportedMediaType, message: "only JPEG and PNG images are supported"}
	}

	src, err := file.Open()
	if err != nil {
		return nil, &uploadError{status: http.StatusBadRequest, message: "unable to open image"}
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func allowedContentType(file *multipart.FileHeader) bool {
	mediaType, _, err := mime.ParseMediaType(file.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return allowedContentTypes[strings.ToLower(mediaType)]
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
