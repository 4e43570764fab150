package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/pipeline"
	"github.com/rushteam/inferkit/usecase"
)

// 请求级 K 的取值范围
const (
	minTopK = 1
	maxTopK = 100
)

// featuresRequest envelope=features 时的请求体
type featuresRequest struct {
	Features map[string]any `json:"features" validate:"required"`
	TopK     *int           `json:"top_k" validate:"omitempty,min=1,max=100"`
}

func (s *Server) handleHealth(c *gin.Context) {
	useCases := make(map[string]usecase.Health, len(s.useCases))
	for _, uc := range s.useCases {
		useCases[uc.Name] = uc.Health()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"model_loaded": true,
		"use_cases":    useCases,
	})
}

func (s *Server) handleUseCaseHealth(c *gin.Context) {
	name := c.Param("usecase")
	uc, ok := s.byName[name]
	if !ok {
		abortWithError(c, core.NewDomainError(core.ModulePipeline, core.ErrorCodeNotFound,
			fmt.Sprintf("unknown use case %q", name)))
		return
	}
	c.JSON(http.StatusOK, uc.Health())
}

func (s *Server) handleReady(c *gin.Context) {
	results := usecase.ReadyAll(c.Request.Context(), s.useCases)
	status := http.StatusOK
	useCases := make(map[string]gin.H, len(results))
	for name, err := range results {
		if err != nil {
			status = http.StatusServiceUnavailable
			useCases[name] = gin.H{"status": "unavailable", "detail": err.Error()}
			continue
		}
		useCases[name] = gin.H{"status": "ok"}
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	c.JSON(status, gin.H{"status": overall, "use_cases": useCases})
}

func (s *Server) handlePredict(uc *usecase.UseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(ctxUseCase, uc.Name)

		status := s.predict(c, uc)
		s.metrics.ObserveRequest(uc.Name, status, time.Since(start))
	}
}

func (s *Server) predict(c *gin.Context, uc *usecase.UseCase) int {
	var (
		pctx *core.PredictContext
		err  error
	)
	if uc.Input == pipeline.InputImage {
		pctx, err = s.readImage(c)
	} else {
		pctx, err = s.readRecord(c, uc)
	}
	if err != nil {
		return abortWithError(c, err)
	}
	pctx.RequestID = requestID(c)

	body, err := uc.Predict(c.Request.Context(), pctx)
	if err != nil {
		return abortWithError(c, err)
	}
	c.JSON(http.StatusOK, body)
	return http.StatusOK
}

func (s *Server) readRecord(c *gin.Context, uc *usecase.UseCase) (*core.PredictContext, error) {
	if uc.Envelope == pipeline.EnvelopeFeatures {
		var req featuresRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, invalidInput("request body must be a JSON object with a \"features\" object", err)
		}
		if err := s.validate.Struct(req); err != nil {
			return nil, invalidInput(fmt.Sprintf("invalid request: top_k must be between %d and %d and features is required", minTopK, maxTopK), err)
		}
		pctx := core.NewPredictContext(uc.Name, core.InputRecord(req.Features))
		if req.TopK != nil {
			pctx.TopK = *req.TopK
		}
		return pctx, nil
	}

	var record map[string]any
	if err := c.ShouldBindJSON(&record); err != nil {
		return nil, invalidInput("request body must be a JSON object", err)
	}
	return core.NewPredictContext(uc.Name, core.InputRecord(record)), nil
}

func (s *Server) readImage(c *gin.Context) (*core.PredictContext, error) {
	topK := 0
	if q := c.Query("k"); q != "" {
		k, err := strconv.Atoi(q)
		if err != nil || s.validate.Var(k, "min=1,max=100") != nil {
			return nil, invalidInput(fmt.Sprintf("k must be an integer between %d and %d", minTopK, maxTopK), nil)
		}
		topK = k
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, invalidInput(fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes), nil)
		}
		return nil, invalidInput(`multipart field "file" is required`, err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, invalidInput("failed to read upload", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, invalidInput("failed to read upload", err)
	}

	return &core.PredictContext{
		Image:  data,
		TopK:   topK,
		Params: make(map[string]any),
	}, nil
}
