package broadcast

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v7/linebot"

	"incident-platform/internal/clientinfo"
	"incident-platform/internal/oplog"
	"incident-platform/pkg/logger"
)

// WebhookHandler serves the LINE platform callback. Requests with a bad
// X-Line-Signature are rejected before any event is processed.
type WebhookHandler struct {
	bot *linebot.Client
	ops *oplog.Store
}

func NewWebhookHandler(bot *linebot.Client, ops *oplog.Store) *WebhookHandler {
	return &WebhookHandler{bot: bot, ops: ops}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	events, err := h.bot.ParseRequest(c.Request)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			log.Warn("line webhook signature rejected")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid signature"})
			return
		}
		log.Error("line webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "parse failed"})
		return
	}

	who := clientinfo.FromRequest(c.Request)
	for _, ev := range events {
		switch ev.Type {
		case linebot.EventTypeMessage:
			msg, ok := ev.Message.(*linebot.TextMessage)
			if !ok {
				continue
			}
			h.ops.UserAction("收到LINE訊息", "訊息: "+msg.Text, who)
			h.reply(c, ev.ReplyToken, "收到訊息: "+msg.Text)
		case linebot.EventTypeJoin:
			h.ops.Info("LINE bot joined a group")
			h.reply(c, ev.ReplyToken, "緊急事件通報系統已啟動！")
		}
	}

	c.String(http.StatusOK, "OK")
}

func (h *WebhookHandler) reply(c *gin.Context, token, text string) {
	_, err := h.bot.ReplyMessage(token, linebot.NewTextMessage(text)).WithContext(c.Request.Context()).Do()
	if err != nil {
		logger.FromGin(c).Error("line reply failed", "err", err)
	}
}
