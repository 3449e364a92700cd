package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/barok/wactl/internal/session"
)

const (
	codeMissingArgs      = "MISSING_REQUIRED_ARGS"
	codeClientRegistered = "CLIENT_IS_REGISTERED"

	qrImageSize = 256
)

func (s *Server) registerRoutes() {
	s.router.GET("/api/registration", s.handleRegistration)

	s.router.GET("/api/message", s.handleMessage)
	s.router.POST("/api/message", s.handleMessage)

	s.router.GET("/api/device", s.handleDevice)
	s.router.POST("/api/device", s.handleDevice)

	s.router.GET("/api/qr", s.handleQR)
	s.router.POST("/api/device/reset", s.handleReset)

	s.router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"info":   true,
			"status": "server is up",
		})
	})

	s.router.GET("/api/list-user", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"info": true,
			"data": s.coord.Registry().ListIDs(),
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"uptime":    time.Since(s.started).String(),
			"component": s.cfg.Name,
			"version":   version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// accountID resolves the phone query/form parameter to a canonical account
// id, writing the missing-args envelope on failure.
func (s *Server) accountID(c *gin.Context) (string, bool) {
	phone := c.Query("phone")
	if phone == "" {
		phone = c.PostForm("phone")
	}
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"info":        false,
			"status_code": codeMissingArgs,
			"status":      "Phone number is required to registration.",
		})
		return "", false
	}
	id, err := session.AccountID(phone, s.cfg.AccountDomain)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"info":        false,
			"status_code": codeMissingArgs,
			"status":      "Phone number must contain digits only.",
		})
		return "", false
	}
	return id, true
}

// handleRegistration blocks until the engine reports the first handshake or
// a fatal init outcome, bounded by the configured registration timeout.
func (s *Server) handleRegistration(c *gin.Context) {
	id, ok := s.accountID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RegisterTimeout)
	defer cancel()

	err := s.coord.Register(ctx, id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"info":   true,
			"status": "Registration Success",
		})
	case errors.Is(err, session.ErrAlreadyRegistered):
		c.JSON(http.StatusBadRequest, gin.H{
			"info":        false,
			"status_code": codeClientRegistered,
			"status":      "Client is already registered.",
		})
	case errors.Is(err, session.ErrEngineInit), errors.Is(err, session.ErrRegistrationTimeout):
		c.JSON(http.StatusOK, gin.H{
			"info":   false,
			"status": "Unable to register client, failed to connect to the host.",
		})
	default:
		log.Error().Str("account", id).Err(err).Msg("registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"info":   false,
			"status": err.Error(),
		})
	}
}

func (s *Server) handleMessage(c *gin.Context) {
	id, ok := s.accountID(c)
	if !ok {
		return
	}
	to := param(c, "to")
	text := param(c, "text")
	if to == "" || text == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"info":        false,
			"status_code": codeMissingArgs,
			"status":      "Parameters to and text are required to send a message.",
		})
		return
	}
	target, err := session.AccountID(to, s.cfg.AccountDomain)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"info":        false,
			"status_code": codeMissingArgs,
			"status":      "Target phone number must contain digits only.",
		})
		return
	}

	messageID, err := s.coord.SendText(c.Request.Context(), id, target, text)
	if err != nil {
		s.renderSessionError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"info": true,
		"data": gin.H{"message_id": messageID},
	})
}

func (s *Server) handleDevice(c *gin.Context) {
	id, ok := s.accountID(c)
	if !ok {
		return
	}
	info, err := s.coord.DeviceInfo(c.Request.Context(), id)
	if err != nil {
		s.renderSessionError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"info": true,
		"data": info,
	})
}

// handleQR serves the pending login token as a PNG from the registry token
// snapshot; it never blocks on the coordinator.
func (s *Server) handleQR(c *gin.Context) {
	id, ok := s.accountID(c)
	if !ok {
		return
	}
	registry := s.coord.Registry()
	if token, ok := registry.SnapshotTokens()[id]; ok {
		png, err := qrcode.Encode(token, qrcode.Medium, qrImageSize)
		if err != nil {
			log.Error().Str("account", id).Err(err).Msg("qr render failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"info":   false,
				"status": "Unable to render login token.",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"info": true,
			"data": gin.H{
				"mime": "image/png",
				"qr":   base64.StdEncoding.EncodeToString(png),
			},
		})
		return
	}
	if registry.SnapshotReadiness()[id] {
		c.JSON(http.StatusOK, gin.H{
			"info":   false,
			"status": "Client is ready, no scan needed.",
		})
		return
	}
	if _, ok := registry.Get(id); !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"info":   false,
			"status": "Client is not registered.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"info":   false,
		"status": "Login token is not ready, retry shortly.",
	})
}

// handleReset deletes the stored credential of a ready client and brings
// the whole process down; the supervisor restart guarantees a clean engine.
func (s *Server) handleReset(c *gin.Context) {
	id, ok := s.accountID(c)
	if !ok {
		return
	}
	err := s.coord.Reset(id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"info":   true,
			"status": "Client reset, server is going down for restart.",
		})
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrNoCredential),
		errors.Is(err, session.ErrResetNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{
			"info":   false,
			"status": "Reset a non ready client is illegal.",
		})
	default:
		log.Error().Str("account", id).Err(err).Msg("reset failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"info":   false,
			"status": err.Error(),
		})
	}
}

func (s *Server) renderSessionError(c *gin.Context, accountID string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusBadRequest, gin.H{
			"info":   false,
			"status": "Client is not registered.",
		})
	case errors.Is(err, session.ErrNotReady):
		c.JSON(http.StatusBadRequest, gin.H{
			"info":   false,
			"status": "Client is not ready.",
		})
	default:
		log.Error().Str("account", accountID).Err(err).Msg("engine delegate failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"info":   false,
			"status": err.Error(),
		})
	}
}

func param(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.PostForm(name)
}
