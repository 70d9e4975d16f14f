package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/recycle-points/internal/auth"
	"github.com/example/recycle-points/internal/repository"
	"github.com/example/recycle-points/internal/usecase"
	"github.com/example/recycle-points/internal/vision"
)

// DefaultMaxUploadSize applies when Routes.MaxUploadBytes is unset.
const DefaultMaxUploadSize = vision.MaxImageBytes

// multipartOverhead leaves room for the form fields around the image.
const multipartOverhead = 1 << 20

// ScanService is the subset of the scan use case served over HTTP.
type ScanService interface {
	ProcessScan(ctx context.Context, address string, image []byte) (*usecase.ScanOutcome, error)
	GetScan(ctx context.Context, id string) (*usecase.ScanView, error)
	LookupLocation(ctx context.Context, address string) (*usecase.LocationView, error)
	History(ctx context.Context, address string, limit int) ([]usecase.ScanView, error)
	Leaderboard(ctx context.Context, limit int) ([]usecase.LocationView, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// Routes configures RegisterRoutes.
type Routes struct {
	// Auth guards POST /scans and must not be nil.
	Auth gin.HandlerFunc
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// MaxUploadBytes caps the image upload; zero means DefaultMaxUploadSize.
	MaxUploadBytes int64
}

func (r Routes) maxUpload() int64 {
	if r.MaxUploadBytes <= 0 {
		return DefaultMaxUploadSize
	}
	return r.MaxUploadBytes
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc ScanService, routes Routes) {
	maxUpload := routes.maxUpload()
	authMiddleware := routes.Auth
	if authMiddleware == nil {
		panic("handlers: Routes.Auth is required; use an auth.Authenticator built with Disabled for open access")
	}
	metricsHandler := routes.Metrics

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	router.POST("/scans", authMiddleware, func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload+multipartOverhead)
		if err := c.Request.ParseMultipartForm(maxUpload); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form expected"})
			return
		}

		address := c.PostForm("address")
		if strings.TrimSpace(address) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
			return
		}

		file, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}

		if file.Size > maxUpload {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}

		contentType := file.Header.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(strings.ToLower(contentType), "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image must be an image/* upload"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		ctx := c.Request.Context()
		if subject, ok := auth.SubjectFrom(ctx); ok {
			ctx = usecase.WithSubmitter(ctx, subject)
		}
		out, err := svc.ProcessScan(ctx, address, data)
		if err != nil {
			status, message := scanErrorStatus(err, out)
			c.JSON(status, gin.H{"error": message, "outcome": out})
			return
		}

		if out.Success {
			c.JSON(http.StatusCreated, out)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	router.GET("/scans/:id", func(c *gin.Context) {
		view, err := svc.GetScan(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scan"})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	router.GET("/locations", func(c *gin.Context) {
		loc, err := svc.LookupLocation(c.Request.Context(), c.Query("address"))
		if err != nil {
			writeReadError(c, err)
			return
		}
		c.JSON(http.StatusOK, loc)
	})

	router.GET("/locations/history", func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		scans, err := svc.History(c.Request.Context(), c.Query("address"), limit)
		if err != nil {
			writeReadError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"scans": scans})
	})

	router.GET("/leaderboard", func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		locations, err := svc.Leaderboard(c.Request.Context(), limit)
		if err != nil {
			writeReadError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"locations": locations})
	})

	router.GET("/stats", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			writeReadError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func scanErrorStatus(err error, out *usecase.ScanOutcome) (int, string) {
	message := "scan failed"
	if out != nil && out.Message != "" {
		message = out.Message
	}
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return http.StatusBadRequest, message
	case errors.Is(err, usecase.ErrTransport):
		if errors.Is(err, vision.ErrTimeout) {
			return http.StatusGatewayTimeout, message
		}
		return http.StatusBadGateway, message
	case errors.Is(err, usecase.ErrPersistence):
		return http.StatusInternalServerError, "points were not saved: " + message
	default:
		return http.StatusInternalServerError, message
	}
}

func writeReadError(c *gin.Context, err error) {
	if errors.Is(err, usecase.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a non-empty address is required"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return limit, true
}
