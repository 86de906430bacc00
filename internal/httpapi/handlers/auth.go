package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-podcaster/internal/auth"
	"github.com/suPer8Hu/ai-podcaster/internal/common"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "username and password required")
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.Auth.Username)) == 1
	if !auth.CheckPassword(h.Auth.PasswordHash, req.Password) || !userOK {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
		return
	}
	token, err := auth.SignJWT(req.Username, h.Auth.JWTSecret, h.Auth.TokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.OK(c, gin.H{
		"token":      token,
		"expires_in": int(h.Auth.TokenTTL.Seconds()),
	})
}
