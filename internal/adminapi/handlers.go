package adminapi

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"incident-platform/internal/audit"
	"incident-platform/internal/auth"
	"incident-platform/internal/broadcast"
	"incident-platform/internal/clientinfo"
	"incident-platform/internal/oplog"
	"incident-platform/internal/rbac"
	"incident-platform/internal/records"
	"incident-platform/pkg/logger"
)

const dateLayout = "2006-01-02"

// Handlers groups the staff interface endpoints for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
// Every response carries a success flag so the staff frontend can branch
// without inspecting status codes.

type Handlers struct {
	Auth      *auth.Manager
	Records   *records.Store
	Ops       *oplog.Store
	Broadcast *broadcast.Service
	Audit     *audit.Service

	AdminPassword string

	clock func() time.Time
}

func NewHandlers(am *auth.Manager, rec *records.Store, ops *oplog.Store, bc *broadcast.Service, aud *audit.Service, adminPassword string) *Handlers {
	return &Handlers{
		Auth:          am,
		Records:       rec,
		Ops:           ops,
		Broadcast:     bc,
		Audit:         aud,
		AdminPassword: adminPassword,
		clock:         time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (h *Handlers) WithClock(clock func() time.Time) *Handlers {
	h.clock = clock
	return h
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies the staff password and issues a JWT token pair.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "username and password required"})
		return
	}
	if h.AdminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.AdminPassword)) != 1 {
		h.Ops.UserAction("管理員登入失敗", "User="+req.Username, clientinfo.FromRequest(c.Request))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
		return
	}

	pair, err := h.Auth.IssuePair(h.clock(), req.Username, rbac.RoleAdmin)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "token issuance failed"})
		return
	}

	h.Ops.UserAction("管理員登入", "User="+req.Username, clientinfo.FromRequest(c.Request))
	h.recordAudit(c, audit.EventTypeAdminLogin, "staff login", "")
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

/* ===================== RECORDS ===================== */

func (h *Handlers) ListRecords(c *gin.Context) {
	from, to, ok := h.queryRange(c)
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

	c.JSON(http.StatusOK, gin.H{"success": true, "total": len(list), "records": list})
}

func (h *Handlers) GetRecord(c *gin.Context) {
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

	h.recordAudit(c, audit.EventTypeAdminAction, "viewed record "+id, "")
	c.JSON(http.StatusOK, gin.H{"success": true, "record": r, "formatted": records.Format(r)})
}

type rangeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (h *Handlers) ExportRecords(c *gin.Context) {
	from, to, ok := h.bodyRange(c)
	if !ok {
		return
	}

	blob, err := h.Records.Export(from, to)
	if err != nil {
		h.rangeError(c, err)
		return
	}

	h.recordAudit(c, audit.EventTypeAdminAction,
		fmt.Sprintf("exported records %s ~ %s", from.Format(dateLayout), to.Format(dateLayout)), "")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=case_records_%s_%s.txt",
		from.Format("20060102"), to.Format("20060102")))
	c.String(http.StatusOK, blob)
}

func (h *Handlers) ClearRecords(c *gin.Context) {
	from, to, ok := h.bodyRange(c)
	if !ok {
		return
	}

	cleared, err := h.Records.Clear(from, to)
	if err != nil {
		h.rangeError(c, err)
		return
	}

	h.Ops.UserAction("清除案件紀錄", fmt.Sprintf("Range=%s~%s | Cleared=%d",
		from.Format(dateLayout), to.Format(dateLayout), len(cleared)), clientinfo.FromRequest(c.Request))
	h.recordAudit(c, audit.EventTypeRecordsClear,
		fmt.Sprintf("cleared %d records %s ~ %s", len(cleared), from.Format(dateLayout), to.Format(dateLayout)), "")
	c.JSON(http.StatusOK, gin.H{"success": true, "cleared": cleared, "total": len(cleared)})
}

func (h *Handlers) GetStats(c *gin.Context) {
	from, to, ok := h.queryRange(c)
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

/* ===================== LOGS ===================== */

func (h *Handlers) ListLogFiles(c *gin.Context) {
	files, err := h.Ops.ListFiles()
	if err != nil {
		logger.FromGin(c).Error("log file listing failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "log listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "files": files})
}

type logFilterRequest struct {
	Level string `json:"level"`
	From  string `json:"from"`
	To    string `json:"to"`
	IP    string `json:"ip"`
	Limit int    `json:"limit"`
}

func (h *Handlers) FilterLogs(c *gin.Context) {
	var req logFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	from, to, ok := h.parseRange(c, req.From, req.To)
	if !ok {
		return
	}

	entries, err := h.Ops.Filter(req.Level, from, to, req.IP, req.Limit)
	if err != nil {
		h.rangeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "total": len(entries), "logs": entries})
}

func (h *Handlers) ExportLogs(c *gin.Context) {
	from, to, ok := h.bodyRange(c)
	if !ok {
		return
	}

	blob, err := h.Ops.Export(from, to)
	if err != nil {
		h.rangeError(c, err)
		return
	}

	h.recordAudit(c, audit.EventTypeAdminAction,
		fmt.Sprintf("exported logs %s ~ %s", from.Format(dateLayout), to.Format(dateLayout)), "")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=logs_%s_%s.txt",
		from.Format("20060102"), to.Format("20060102")))
	c.String(http.StatusOK, blob)
}

func (h *Handlers) ClearLogs(c *gin.Context) {
	from, to, ok := h.bodyRange(c)
	if !ok {
		return
	}

	cleared, err := h.Ops.Clear(from, to)
	if err != nil {
		h.rangeError(c, err)
		return
	}

	h.recordAudit(c, audit.EventTypeLogsClear,
		fmt.Sprintf("cleared %d log files %s ~ %s", len(cleared), from.Format(dateLayout), to.Format(dateLayout)), "")
	c.JSON(http.StatusOK, gin.H{"success": true, "cleared": cleared, "total": len(cleared)})
}

/* ===================== SYSTEM TESTS ===================== */

func (h *Handlers) TestLine(c *gin.Context) {
	err := h.Broadcast.TestLine(c.Request.Context())
	h.recordAudit(c, audit.EventTypeBroadcastTest, "line test", "")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "LINE Bot 連線正常"})
}

func (h *Handlers) TestDiscord(c *gin.Context) {
	id, err := h.Broadcast.TestDiscord(c.Request.Context())
	h.recordAudit(c, audit.EventTypeBroadcastTest, "discord test", "")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Discord Webhook 連線正常", "message_id": id})
}

/* ===================== ANNOUNCEMENTS ===================== */

type announcementRequest struct {
	Content   string   `json:"content"`
	Platforms []string `json:"platforms"`
}

func (h *Handlers) PublishAnnouncement(c *gin.Context) {
	var req announcementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	if req.Content == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "公告內容不能為空"})
		return
	}
	if len(req.Platforms) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "請至少選擇一個發布平台"})
		return
	}

	res := h.Broadcast.Announce(c.Request.Context(), req.Content, req.Platforms)
	h.Ops.UserAction("發布系統公告", fmt.Sprintf("Platforms=%v | LINE=%t | Discord=%t",
		req.Platforms, res.LineSuccess, res.DiscordSuccess), clientinfo.FromRequest(c.Request))
	h.recordAudit(c, audit.EventTypeAnnouncement, "published announcement", "")

	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

/* ===================== BROADCAST CONTROL ===================== */

type controlRequest struct {
	Line    *bool `json:"line"`
	Discord *bool `json:"discord"`
}

func (h *Handlers) GetBroadcastControl(c *gin.Context) {
	line, discord := h.Broadcast.Status()
	c.JSON(http.StatusOK, gin.H{"success": true, "line": line, "discord": discord})
}

func (h *Handlers) SetBroadcastControl(c *gin.Context) {
	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	h.Broadcast.SetControl(req.Line, req.Discord)
	line, discord := h.Broadcast.Status()
	h.recordAudit(c, audit.EventTypeAdminAction,
		fmt.Sprintf("broadcast control line=%t discord=%t", line, discord), "")
	c.JSON(http.StatusOK, gin.H{"success": true, "line": line, "discord": discord})
}

/* ===================== HELPERS ===================== */

// recordAudit is best-effort: the administrative flow never fails because the
// audit trail is down.
func (h *Handlers) recordAudit(c *gin.Context, typ audit.EventType, message, metadata string) {
	if h.Audit == nil {
		return
	}
	actor, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	ip := clientinfo.FromRequest(c.Request).IP
	if err := h.Audit.LogAdminAction(c.Request.Context(), typ, actor, role, ip, message, metadata); err != nil {
		logger.FromGin(c).Error("audit append failed", "type", string(typ), "err", err)
	}
}

func (h *Handlers) queryRange(c *gin.Context) (time.Time, time.Time, bool) {
	return h.parseRange(c, c.Query("from"), c.Query("to"))
}

func (h *Handlers) bodyRange(c *gin.Context) (time.Time, time.Time, bool) {
	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return time.Time{}, time.Time{}, false
	}
	return h.parseRange(c, req.From, req.To)
}

// parseRange resolves "YYYY-MM-DD" bounds. from defaults to today, an
// omitted to collapses the range to the single from day. A malformed date
// rejects the whole request before anything is processed.
func (h *Handlers) parseRange(c *gin.Context, fromStr, toStr string) (time.Time, time.Time, bool) {
	from := h.clock()

	var err error
	if fromStr != "" {
		from, err = time.ParseInLocation(dateLayout, fromStr, time.Local)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "日期格式錯誤: " + fromStr})
			return time.Time{}, time.Time{}, false
		}
	}
	to := from
	if toStr != "" {
		to, err = time.ParseInLocation(dateLayout, toStr, time.Local)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "日期格式錯誤: " + toStr})
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
