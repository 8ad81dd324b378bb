package wizard

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"incident-platform/internal/broadcast"
	"incident-platform/internal/clientinfo"
	"incident-platform/internal/incident"
	"incident-platform/internal/oplog"
	"incident-platform/internal/records"
	"incident-platform/internal/session"
	"incident-platform/pkg/logger"
)

const (
	sessionCookie = "report_session"
	// maxContentRunes caps the free-text supplement so one submission cannot
	// blow up the broadcast message or the record file.
	maxContentRunes = 2000
)

// Handlers groups the reporter wizard endpoints for dependency injection.
// Keep these thin: parse/validate the one field of the step, assert the
// session position, store, advance.

type Handlers struct {
	Sessions  session.Store
	Broadcast *broadcast.Service
	Records   *records.Store
	Ops       *oplog.Store
	Once      OnceGuard

	clock func() time.Time
}

func NewHandlers(sessions session.Store, bc *broadcast.Service, rec *records.Store, ops *oplog.Store, once OnceGuard) *Handlers {
	return &Handlers{
		Sessions:  sessions,
		Broadcast: bc,
		Records:   rec,
		Ops:       ops,
		Once:      once,
		clock:     time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (h *Handlers) WithClock(clock func() time.Time) *Handlers {
	h.clock = clock
	return h
}

// Start resets the wizard: a fresh session at the category step. Revisiting
// the first page always discards any half-finished report. The session id
// rotates on every visit so each report claims its own once-guard key; a
// browser that already filed a case can always file the next one.
func (h *Handlers) Start(c *gin.Context) {
	id := uuid.NewString()
	c.SetCookie(sessionCookie, id, 0, "/", "", false, true)

	st := session.State{Step: session.StepSelectCategory}
	if err := h.Sessions.Put(c.Request.Context(), id, st); err != nil {
		logger.FromGin(c).Error("session init failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "session unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"step":    session.StepSelectCategory.String(),
		"events": gin.H{
			"1": incident.EventOHCA.Name(),
			"2": incident.EventInternal.Name(),
			"3": incident.EventSurgical.Name(),
		},
	})
}

// SubmitEvent handles the case category choice.
func (h *Handlers) SubmitEvent(c *gin.Context) {
	id, st, ok := h.load(c, session.StepSelectCategory)
	if !ok {
		return
	}

	raw := c.PostForm("event")
	n, err := strconv.Atoi(raw)
	event := incident.EventType(n)
	if err != nil || !event.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "event must be 1, 2 or 3"})
		return
	}

	st.Event = event
	st.Step = session.StepSelectLocation
	if !h.store(c, id, st) {
		return
	}

	h.Ops.UserAction("選擇案件分類", fmt.Sprintf("分類: %s(%d)", event.Name(), n), clientinfo.FromRequest(c.Request))
	c.JSON(http.StatusOK, gin.H{"success": true, "next": "/Inform/Read_03_Location"})
}

// ShowLocations returns the selectable building table for the session.
func (h *Handlers) ShowLocations(c *gin.Context) {
	if _, _, ok := h.load(c, session.StepSelectLocation); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"step":      session.StepSelectLocation.String(),
		"locations": incident.DefaultLocations(),
	})
}

// SubmitLocation handles the building choice. selectedButtonInput 0 means the
// reporter typed a custom location, stored under the session-local sentinel.
func (h *Handlers) SubmitLocation(c *gin.Context) {
	id, st, ok := h.load(c, session.StepSelectLocation)
	if !ok {
		return
	}

	selected, err := strconv.Atoi(c.PostForm("selectedButtonInput"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "selectedButtonInput must be a number"})
		return
	}

	who := clientinfo.FromRequest(c.Request)
	if selected != 0 {
		if !incident.IsDefaultLocation(selected) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown location"})
			return
		}
		st.LocationID = selected
		h.Ops.UserAction("選擇案件地點", fmt.Sprintf("地點: %s(%d)", incident.LocationName(selected, nil), selected), who)
	} else {
		custom := c.PostForm("customLocation")
		if custom == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "customLocation required"})
			return
		}
		st.SetCustomLocation(custom)
		h.Ops.UserAction("自訂案件地點", "自訂地點: "+custom, who)
	}

	st.Step = session.StepSelectRoom
	if !h.store(c, id, st) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "next": "/Inform/Read_05_Room"})
}

func (h *Handlers) ShowRoom(c *gin.Context) {
	if _, _, ok := h.load(c, session.StepSelectRoom); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "step": session.StepSelectRoom.String()})
}

// SubmitRoom handles the in-building position. A single-character answer is
// read as a floor number.
func (h *Handlers) SubmitRoom(c *gin.Context) {
	id, st, ok := h.load(c, session.StepSelectRoom)
	if !ok {
		return
	}

	room := c.PostForm("room")
	if room == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "room required"})
		return
	}

	st.Room = incident.NormalizeRoom(room)
	st.Step = session.StepEnterContent
	if !h.store(c, id, st) {
		return
	}

	h.Ops.UserAction("輸入房號位置", "房號: "+st.Room, clientinfo.FromRequest(c.Request))
	c.JSON(http.StatusOK, gin.H{"success": true, "next": "/Inform/Read_06_Content"})
}

func (h *Handlers) ShowContent(c *gin.Context) {
	if _, _, ok := h.load(c, session.StepEnterContent); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "step": session.StepEnterContent.String()})
}

// SubmitContent handles the optional free-text supplement.
func (h *Handlers) SubmitContent(c *gin.Context) {
	id, st, ok := h.load(c, session.StepEnterContent)
	if !ok {
		return
	}

	content := c.PostForm("content")
	if n := len([]rune(content)); n > maxContentRunes {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("content exceeds %d characters", maxContentRunes)})
		return
	}

	st.Content = content
	st.Step = session.StepConfirm
	if !h.store(c, id, st) {
		return
	}

	h.Ops.UserAction("輸入案件內容", fmt.Sprintf("內容長度: %d", len([]rune(content))), clientinfo.FromRequest(c.Request))
	c.JSON(http.StatusOK, gin.H{"success": true, "next": "/Inform/Read_07_Check"})
}

// ShowCheck returns the assembled report for reporter confirmation.
func (h *Handlers) ShowCheck(c *gin.Context) {
	_, st, ok := h.load(c, session.StepConfirm)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"step":     session.StepConfirm.String(),
		"event":    st.Event.Name(),
		"location": st.LocationName(),
		"room":     st.Room,
		"content":  st.Content,
	})
}

// SubmitCheck records confirmation and arms the send step.
func (h *Handlers) SubmitCheck(c *gin.Context) {
	id, st, ok := h.load(c, session.StepConfirm)
	if !ok {
		return
	}

	st.Step = session.StepSend
	if !h.store(c, id, st) {
		return
	}

	h.Ops.UserAction("確認案件資訊", "", clientinfo.FromRequest(c.Request))
	c.JSON(http.StatusOK, gin.H{"success": true, "next": "/Inform/Read_08_Sending"})
}

// SubmitSend performs the broadcast. The once-guard makes a replayed POST a
// no-op: only the first claim on this session dispatches anything. The case
// record is written whatever the channel outcomes were; a failed broadcast is
// a recorded fact, not an aborted report.
func (h *Handlers) SubmitSend(c *gin.Context) {
	id, st, ok := h.load(c, session.StepSend)
	if !ok {
		return
	}
	who := clientinfo.FromRequest(c.Request)

	acquired, err := h.Once.Acquire(c.Request.Context(), "report_once:"+id)
	if err != nil {
		logger.FromGin(c).Error("once guard failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "submission guard unavailable"})
		return
	}
	if !acquired {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "error": "report already submitted", "restart": "/Inform/Read_02_Event"})
		return
	}

	now := h.clock()
	location := st.LocationName()
	message := incident.ComposeMessage(st.Event, location, st.Room, st.Content, now)

	h.Ops.UserAction("提交案件通報", fmt.Sprintf("Event=%s | Location=%s | Room=%s | ContentLength=%d",
		st.Event.Name(), location, st.Room, len([]rune(st.Content))), who)

	res := h.Broadcast.SendCase(c.Request.Context(), message)
	if res.LineSuccess {
		h.Ops.UserAction("LINE發送成功", "", who)
	} else if res.LineError != "" {
		h.Ops.UserAction("LINE發送失敗", "Error="+res.LineError, who)
	}
	if res.DiscordSuccess {
		h.Ops.UserAction("Discord發送成功", "MessageID="+res.DiscordMessageID, who)
	} else if res.DiscordError != "" {
		h.Ops.UserAction("Discord發送失敗", "Error="+res.DiscordError, who)
	}
	h.Ops.UserAction("案件廣播完成", fmt.Sprintf("Discord=%t | LINE=%t", res.DiscordSuccess, res.LineSuccess), who)

	caseID, err := h.Records.Save(records.Record{
		EventType:        st.Event.Name(),
		Location:         location,
		Room:             st.Room,
		Content:          st.Content,
		Message:          message,
		Reporter:         who,
		LineSuccess:      res.LineSuccess,
		DiscordSuccess:   res.DiscordSuccess,
		LineError:        res.LineError,
		DiscordError:     res.DiscordError,
		DiscordMessageID: res.DiscordMessageID,
	})
	if err != nil {
		logger.FromGin(c).Error("case record save failed", "err", err)
		h.Ops.UserAction("案件紀錄保存失敗", "Error="+err.Error(), who)
	} else {
		h.Ops.UserAction("案件紀錄已保存", "RecordFile=case_"+caseID+".json", who)
	}

	// The report is complete regardless of persistence or channel outcomes.
	if err := h.Sessions.Delete(c.Request.Context(), id); err != nil {
		logger.FromGin(c).Error("session delete failed", "err", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"step":            session.StepCompleted.String(),
		"case_id":         caseID,
		"line_success":    res.LineSuccess,
		"discord_success": res.DiscordSuccess,
		"next":            "/Inform/Read_10_Sended",
	})
}

// ShowSended is the terminal page descriptor.
func (h *Handlers) ShowSended(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "step": session.StepCompleted.String()})
}

// load fetches the caller's session and asserts the wizard position. A
// missing session or an out-of-order request gets a restart hint; handlers
// must return immediately when ok is false.
func (h *Handlers) load(c *gin.Context, want session.Step) (string, session.State, bool) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "error": "no active report", "restart": "/Inform/Read_02_Event"})
		return "", session.State{}, false
	}

	st, err := h.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		if err == session.ErrNotFound {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "error": "report session expired", "restart": "/Inform/Read_02_Event"})
			return "", session.State{}, false
		}
		logger.FromGin(c).Error("session load failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "session unavailable"})
		return "", session.State{}, false
	}

	if st.Step != want {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   fmt.Sprintf("expected step %s, session is at %s", want, st.Step),
			"restart": "/Inform/Read_02_Event",
		})
		return "", session.State{}, false
	}
	return id, st, true
}

func (h *Handlers) store(c *gin.Context, id string, st session.State) bool {
	if err := h.Sessions.Put(c.Request.Context(), id, st); err != nil {
		logger.FromGin(c).Error("session store failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "session unavailable"})
		return false
	}
	return true
}
