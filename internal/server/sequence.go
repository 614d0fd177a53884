package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	sequencedomain "github.com/smallbiznis/procura/internal/sequence/domain"
)

func (s *Server) GetSequence(c *gin.Context) {
	counter, err := s.sequenceSvc.Get(c.Request.Context(), currentOrgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": counter})
}

type configureSequenceRequest struct {
	Prefix  *string `json:"prefix"`
	Padding *int    `json:"padding"`
}

func (s *Server) ConfigureSequence(c *gin.Context) {
	var req configureSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	counter, err := s.sequenceSvc.Configure(c.Request.Context(), currentOrgID(c), sequencedomain.ConfigureRequest{
		Prefix:  req.Prefix,
		Padding: req.Padding,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": counter})
}

// AllocateSequence issues a code without attaching it to an item.
func (s *Server) AllocateSequence(c *gin.Context) {
	code, err := s.sequenceSvc.AllocateNext(c.Request.Context(), currentOrgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"code": code}})
}

type setSequenceNextRequest struct {
	Next int64 `json:"next"`
}

func (s *Server) SetSequenceNext(c *gin.Context) {
	var req setSequenceNextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	counter, err := s.sequenceSvc.SetNext(c.Request.Context(), currentOrgID(c), req.Next)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": counter})
}
