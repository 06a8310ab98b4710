package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/knowledge/retriever"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

const (
	errMessageRequired = "Message is required"
	errInternal        = "Internal server error"
)

// Answerer answers one question from the stored corpus.
type Answerer interface {
	Answer(ctx context.Context, question string) (*retriever.Answer, error)
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type ChatResponse struct {
	Response string             `json:"response"`
	Sources  []retriever.Source `json:"sources"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func chatHandler(answerer Answerer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			if err != nil {
				log.Debug("Rejected chat request", "error", err)
			}
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: errMessageRequired})
			return
		}
		answer, err := answerer.Answer(ctx, req.Message)
		if err != nil {
			if errors.Is(err, core.ErrInvalidRequest) {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: errMessageRequired})
				return
			}
			log.Error("Error processing chat request", "kind", core.KindOf(err), "error", core.RedactError(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: errInternal})
			return
		}
		sources := answer.Sources
		if sources == nil {
			sources = []retriever.Source{}
		}
		c.JSON(http.StatusOK, ChatResponse{Response: answer.Response, Sources: sources})
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
