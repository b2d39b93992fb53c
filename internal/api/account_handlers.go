package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dshills/gocommerce/internal/account"
	"github.com/dshills/gocommerce/pkg/types"
)

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/auth/register
func (s *Server) register(c *gin.Context) {
	var req account.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	result, err := s.svc.Accounts.Register(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// POST /api/auth/login
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	result, err := s.svc.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /api/users/me
func (s *Server) getMe(c *gin.Context) {
	user, err := s.svc.Accounts.GetUser(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// PUT /api/users/me
func (s *Server) updateMe(c *gin.Context) {
	var req account.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	user, err := s.svc.Accounts.UpdateUser(c.Request.Context(), currentUser(c), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DELETE /api/users/me
func (s *Server) deleteMe(c *gin.Context) {
	if err := s.svc.Accounts.DeleteUser(c.Request.Context(), currentUser(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/users/me/preferences
func (s *Server) getPreferences(c *gin.Context) {
	prefs, err := s.svc.Accounts.GetPreferences(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if prefs == nil {
		prefs = types.Attributes{}
	}
	c.JSON(http.StatusOK, prefs)
}

// PUT /api/users/me/preferences
func (s *Server) putPreferences(c *gin.Context) {
	var prefs types.Attributes
	if err := c.ShouldBindJSON(&prefs); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	saved, err := s.svc.Accounts.PutPreferences(c.Request.Context(), currentUser(c), prefs)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
