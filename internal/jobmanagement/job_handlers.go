package jobmanagement

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers exposes a SweepService over HTTP.
type Handlers struct {
	Service *SweepService
}

// NewHandlers returns handlers bound to svc.
func NewHandlers(svc *SweepService) *Handlers {
	return &Handlers{Service: svc}
}

// experimentSummary is one entry of the experiment listing.
type experimentSummary struct {
	Name    string  `json:"name"`
	Status  string  `json:"status"` // "ok" or "failed"
	Rows    int     `json:"rows,omitempty"`
	BestSum float64 `json:"best_sum,omitempty"`
	Best    string  `json:"best,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// latestRun writes 404 and returns nil when no sweep has finished yet.
func (h *Handlers) latestRun(c *gin.Context) *SweepRun {
	run := h.Service.Latest()
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sweep has completed yet"})
		return nil
	}
	return run
}

// GetSweepHandler returns the latest run's metadata.
func (h *Handlers) GetSweepHandler(c *gin.Context) {
	run := h.latestRun(c)
	if run == nil {
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListExperimentsHandler lists every configured experiment and whether it has a report.
func (h *Handlers) ListExperimentsHandler(c *gin.Context) {
	run := h.latestRun(c)
	if run == nil {
		return
	}

	experiments := []experimentSummary{}
	for _, exp := range run.Config.ExpNames {
		summary := experimentSummary{Name: exp, Status: "ok"}
		if report, ok := run.Reports[exp]; ok {
			summary.Rows = len(report.Rows)
			if best, ok := report.Best(); ok {
				summary.BestSum = best.Sum
				summary.Best = best.Markdown()
			}
		} else {
			summary.Status = "failed"
			summary.Error = run.ReportErrors[exp]
		}
		experiments = append(experiments, summary)
	}
	c.JSON(http.StatusOK, experiments)
}

// GetReportHandler returns one experiment's report as Markdown (default) or JSON
// (?format=json).
func (h *Handlers) GetReportHandler(c *gin.Context) {
	run := h.latestRun(c)
	if run == nil {
		return
	}

	name := c.Param("name")
	report, ok := run.Reports[name]
	if !ok {
		if msg, failed := run.ReportErrors[name]; failed {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Report could not be built: " + msg})
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown experiment: " + name})
		}
		return
	}

	switch c.DefaultQuery("format", "markdown") {
	case "json":
		c.JSON(http.StatusOK, report)
	case "markdown":
		var buf bytes.Buffer
		if err := report.WriteMarkdown(&buf); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report: " + err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be markdown or json"})
	}
}

// GetMissedHandler returns the lookups the latest run could not resolve.
func (h *Handlers) GetMissedHandler(c *gin.Context) {
	run := h.latestRun(c)
	if run == nil {
		return
	}
	if run.Missed == nil {
		c.JSON(http.StatusOK, []struct{}{})
		return
	}
	c.JSON(http.StatusOK, run.Missed)
}

// GetStoredReportHandler serves a report uploaded by an earlier run from the object store.
func (h *Handlers) GetStoredReportHandler(c *gin.Context) {
	if h.Service.Reports == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Report upload is not configured"})
		return
	}
	data, err := h.Service.Reports.GetReport(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Failed to retrieve report: " + err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", data)
}

// RunSweepHandler re-runs the sweep synchronously and returns the new run.
func (h *Handlers) RunSweepHandler(c *gin.Context) {
	run, err := h.Service.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if run != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Sweep failed: " + err.Error(),
				"run":   run,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, run)
}
