package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/health"
	"github.com/vzahanych/land2port/internal/reframe"
)

type detectionRequest struct {
	Class      string  `json:"class" binding:"required"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
}

type frameRequest struct {
	Index       *int64             `json:"index" binding:"required"`
	TimestampMS float64            `json:"timestamp_ms"`
	Similarity  *float64           `json:"similarity" binding:"omitempty,gte=0,lte=1"`
	Detections  []detectionRequest `json:"detections" binding:"dive"`
}

type rectJSON struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type cutJSON struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
}

type frameResponse struct {
	Index         int64      `json:"index"`
	TimestampMS   float64    `json:"timestamp_ms"`
	Layout        string     `json:"layout"`
	Tag           string     `json:"tag"`
	Rects         []rectJSON `json:"rects"`
	Shares        []float64  `json:"shares"`
	OutputHeights []int      `json:"output_heights"`
	Cut           cutJSON    `json:"cut"`
	Step          string     `json:"step"`
	Reason        string     `json:"reason"`
	Subjects      int        `json:"subjects"`
	Dropped       int        `json:"dropped"`
	Snapped       bool       `json:"snapped"`
	Predicted     bool       `json:"predicted"`
}

// handleHealth reports every check and managed service
func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":   health.StatusHealthy,
			"version":  s.version,
			"sessions": s.sessions.Len(),
		})
		return
	}

	report := s.health.Check(c.Request.Context())
	code := http.StatusOK
	if !report.Ready() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    report.Status,
		"version":   s.version,
		"uptime":    report.Uptime,
		"sessions":  s.sessions.Len(),
		"checks":    report.Checks,
		"services":  report.Services,
		"timestamp": report.Timestamp,
	})
}

// handleLiveness answers as long as the process serves requests
func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "alive",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleReadiness is unavailable while any check is unhealthy
func (s *Server) handleReadiness(c *gin.Context) {
	ready := true
	status := health.StatusHealthy
	if s.health != nil {
		report := s.health.Check(c.Request.Context())
		ready, status = report.Ready(), report.Status
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "ready": ready})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.sessions.Create(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleListSessions(c *gin.Context) {
	list := s.sessions.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": list,
		"count":    len(list),
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	info, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleCloseSession(c *gin.Context) {
	summary, err := s.sessions.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := gin.H{
		"id":     summary.StreamID,
		"frames": summary.Frames,
		"stats":  summary.Stats,
	}
	if summary.HasLast {
		resp["last_window"] = gin.H{
			"tag":   summary.Last.Tag(),
			"rects": rectsJSON(summary.Last.Rects),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFrame(c *gin.Context) {
	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	index := *req.Index
	dets := make([]detection.Detection, 0, len(req.Detections))
	for _, d := range req.Detections {
		dets = append(dets, detection.Detection{
			Box:        geometry.RectFromCorners(d.X1, d.Y1, d.X2, d.Y2),
			Class:      d.Class,
			Confidence: d.Confidence,
			FrameIndex: index,
		})
	}

	res, err := s.sessions.Process(c.Request.Context(), c.Param("id"), reframe.FrameInput{
		Index:      index,
		Timestamp:  time.Duration(req.TimestampMS * float64(time.Millisecond)),
		Similarity: req.Similarity,
		Detections: dets,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	out := res.Output
	c.JSON(http.StatusOK, frameResponse{
		Index:         out.Index,
		TimestampMS:   float64(out.Timestamp) / float64(time.Millisecond),
		Layout:        out.Window.Layout.String(),
		Tag:           out.Window.Tag(),
		Rects:         rectsJSON(out.Window.Rects),
		Shares:        out.Window.Shares,
		OutputHeights: res.OutputHeights,
		Cut:           cutJSON{Class: out.Cut.Class.String(), Score: out.Cut.Score},
		Step:          out.Step,
		Reason:        out.Reason,
		Subjects:      out.Subjects,
		Dropped:       out.Dropped,
		Snapped:       out.Snapped,
		Predicted:     out.Predicted,
	})
}

func (s *Server) respondError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrOutOfOrder):
		code = http.StatusConflict
	case errors.Is(err, ErrTooManySessions):
		code = http.StatusTooManyRequests
	case errors.Is(err, reframe.ErrInvalidStream):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		s.LogError("Request failed", err, "path", c.FullPath())
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func rectsJSON(rects []geometry.Rect) []rectJSON {
	out := make([]rectJSON, len(rects))
	for i, r := range rects {
		out[i] = rectJSON{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	}
	return out
}
