// internal/web/handlers.go - Status API handlers
package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"soapwatch/internal/database"
	"soapwatch/internal/schedule"
)

func (s *Server) getServices(c *gin.Context) {
	services, err := s.store.GetServices(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to get services")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get services"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  services,
		"count": len(services),
	})
}

func (s *Server) getService(c *gin.Context) {
	name := c.Param("name")

	svc, err := s.store.GetService(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Service not found"})
		return
	}

	view := gin.H{"service": svc}
	if latest, err := s.store.GetLatestResult(c.Request.Context(), name); err == nil {
		view["latest_result"] = latest
	}
	if next, ok := s.engine.Scheduler().NextDue(name); ok {
		view["next_due"] = next
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) getServiceResults(c *gin.Context) {
	name := c.Param("name")

	since := time.Now().Add(-24 * time.Hour)
	if sinceStr := c.Query("since"); sinceStr != "" {
		if parsed, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			since = parsed
		}
	}

	history, err := s.store.GetResultHistory(c.Request.Context(), name, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get result history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  history,
		"count": len(history),
	})
}

// getServiceTask renders the service's schedule as OS task descriptors:
// cron lines for Unix hosts, a calendar trigger for Windows.
func (s *Server) getServiceTask(c *gin.Context) {
	name := c.Param("name")

	for _, svc := range s.engine.Services() {
		if svc.Name != name {
			continue
		}
		task, err := schedule.BuildTask(svc.Name, svc.IntervalMinutes, svc.Window)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"task":     task,
			"next_run": task.NextRun(time.Now()),
		}})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "Service not found"})
}

func (s *Server) getResults(c *gin.Context) {
	filters := database.ResultFilters{
		Service: c.Query("service"),
		Verdict: c.Query("verdict"),
		Limit:   100,
	}

	results, err := s.store.GetResults(c.Request.Context(), filters)
	if err != nil {
		logrus.WithError(err).Error("Failed to get results")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get results"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  results,
		"count": len(results),
	})
}

func (s *Server) getStats(c *gin.Context) {
	results, err := s.store.GetResults(c.Request.Context(), database.ResultFilters{Limit: 1000})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get results"})
		return
	}

	stats := map[string]int{
		"success": 0,
		"warning": 0,
		"failure": 0,
		"error":   0,
	}
	for _, result := range results {
		if _, ok := stats[result.Verdict]; ok {
			stats[result.Verdict]++
		} else {
			stats["error"]++
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
