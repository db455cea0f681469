package viewserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/servicetrack/internal/chat"
	"github.com/zulandar/servicetrack/internal/tracking"
)

// sendBody is the payload of POST /api/messages.
type sendBody struct {
	Text string `json:"text" binding:"required"`
}

// cancelBody is the optional payload of POST /api/cancel.
type cancelBody struct {
	Reason string `json:"reason" binding:"max=500"`
}

// registerRoutes sets up all routes on the gin router.
func registerRoutes(router *gin.Engine, t Tracker, hub *Hub) {
	api := router.Group("/api")
	api.GET("/view", handleView(t))
	api.POST("/refresh", handleRefresh(t))
	api.POST("/cancel", handleCancel(t))

	api.GET("/messages", handleMessages(t))
	api.POST("/messages", handleSend(t))

	api.GET("/notifications", handleNotifications(t))
	api.POST("/notifications/:id/dismiss", handleDismiss(t))
	api.POST("/notifications/dismiss-all", handleDismissAll(t))

	api.GET("/events", handleEvents(t, hub))
}

func handleView(t Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, t.View())
	}
}

func handleRefresh(t Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := t.Refresh(c.Request.Context()); err != nil {
			abortWithError(c, t, err)
			return
		}
		c.JSON(http.StatusOK, t.View())
	}
}

func handleCancel(t Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body cancelBody
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if err := t.Cancel(c.Request.Context(), body.Reason); err != nil {
			abortWithError(c, t, err)
			return
		}
		c.JSON(http.StatusOK, t.View())
	}
}

func handleMessages(t Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := t.View()
		c.JSON(http.StatusOK, gin.H{
			"messages": v.Messages,
			"unread":   v.Unread,
		})
	}
}

func handleSend(t Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body sendBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msg, err := t.Send(c.Request.Context(), body.Text)
		if err != nil {
			abortWithError(c, t, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

func handleNotifications(t Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"notifications": t.View().Notifications})
	}
}

func handleDismiss(t Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.Dismiss(c.Param("id")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleDismissAll(t Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		t.DismissAll()
		c.Status(http.StatusNoContent)
	}
}

// abortWithError maps session and chat errors to HTTP statuses.
func abortWithError(c *gin.Context, t Tracker, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrSendInFlight), errors.Is(err, tracking.ErrNotTracking):
		status = http.StatusConflict
	case errors.Is(err, tracking.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"error":  err.Error(),
		"notice": t.View().Notice,
	})
}
