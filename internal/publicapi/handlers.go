package publicapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"incident-platform/internal/oplog"
	"incident-platform/internal/records"
	"incident-platform/pkg/logger"
)

const dateLayout = "2006-01-02"

// Handlers serves the unauthenticated read-only API. It exposes summaries
// and statistics only; destructive operations live behind the staff app.

type Handlers struct {
	Records *records.Store
	Ops     *oplog.Store

	clock func() time.Time
}

func NewHandlers(rec *records.Store, ops *oplog.Store) *Handlers {
	return &Handlers{Records: rec, Ops: ops, clock: time.Now}
}

// WithClock overrides the time source. Tests only.
func (h *Handlers) WithClock(clock func() time.Time) *Handlers {
	h.clock = clock
	return h
}

func (h *Handlers) GetStats(c *gin.Context) {
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}

	stats, err := h.Records.Stats(from, to)
	if err != nil {
		h.rangeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (h *Handlers) ListCases(c *gin.Context) {
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}

	list, err := h.Records.List(from, to)
	if err != nil {
		h.rangeError(c, err)
		return
	}

	if typ := c.Query("type"); typ != "" && typ != "all" {
		filtered := list[:0]
		for _, sum := range list {
			if sum.EventType == typ {
				filtered = append(filtered, sum)
			}
		}
		list = filtered
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive number"})
			return
		}
		limit = n
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "offset must be a non-negative number"})
			return
		}
		offset = n
	}

	total := len(list)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   total,
		"offset":  offset,
		"cases":   list[offset:end],
	})
}

func (h *Handlers) GetCase(c *gin.Context) {
	id := c.Param("id")
	r, err := h.Records.Read(id)
	if err != nil {
		if err == records.ErrNotFound {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "error": "案件紀錄不存在"})
			return
		}
		logger.FromGin(c).Error("record read failed", "case_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "record unreadable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "case": r})
}

func (h *Handlers) GetLogs(c *gin.Context) {
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive number"})
			return
		}
		limit = n
	}

	entries, err := h.Ops.Filter(c.Query("level"), from, to, c.Query("ip"), limit)
	if err != nil {
		h.rangeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "total": len(entries), "logs": entries})
}

// parseRange resolves from/to query dates. from defaults to today, an
// omitted to collapses the range to the single from day.
func (h *Handlers) parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	from := h.clock()

	var err error
	if raw := c.Query("from"); raw != "" {
		from, err = time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "日期格式錯誤: " + raw})
			return time.Time{}, time.Time{}, false
		}
	}
	to := from
	if raw := c.Query("to"); raw != "" {
		to, err = time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "日期格式錯誤: " + raw})
			return time.Time{}, time.Time{}, false
		}
	}
	return from, to, true
}

func (h *Handlers) rangeError(c *gin.Context, err error) {
	if err == records.ErrInvalidRange || err == oplog.ErrInvalidRange {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "日期範圍無效"})
		return
	}
	logger.FromGin(c).Error("store operation failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}
