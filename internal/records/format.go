package records

import (
	"fmt"
	"strings"
)

// Format renders a record in the bilingual human-auditable layout used for
// viewing and export. This is a one-way formatting step over structured
// data; nothing parses this text back.
func Format(r Record) string {
	ruler := strings.Repeat("=", 50)

	discordID := r.DiscordMessageID
	if discordID == "" {
		discordID = "None"
	}
	content := r.Content
	if content == "" {
		content = "None"
	}

	var b strings.Builder
	b.WriteString("案件紀錄 / Case Record\n")
	b.WriteString(ruler + "\n\n")

	b.WriteString("案件資訊 / Case Information:\n")
	fmt.Fprintf(&b, "- 案件分類 / Case Type: %s\n", r.EventType)
	fmt.Fprintf(&b, "- 案件地點 / Location: %s\n", r.Location)
	fmt.Fprintf(&b, "- 案件位置 / Position: %s\n", r.Room)
	fmt.Fprintf(&b, "- 補充資訊 / Additional Info: %s\n\n", content)

	b.WriteString("通報者資訊 / Reporter Information:\n")
	fmt.Fprintf(&b, "- IP 地址 / IP Address: %s\n", r.Reporter.IP)
	fmt.Fprintf(&b, "- 國家 / Country: %s\n", r.Reporter.Country)
	fmt.Fprintf(&b, "- 城市 / City: %s\n", r.Reporter.City)
	fmt.Fprintf(&b, "- 瀏覽器 / User Agent: %s\n\n", r.Reporter.UserAgent)

	b.WriteString("廣播結果 / Broadcast Results:\n")
	fmt.Fprintf(&b, "- Discord 發送 / Discord Send: %t\n", r.DiscordSuccess)
	fmt.Fprintf(&b, "- LINE 發送 / LINE Send: %t\n", r.LineSuccess)
	fmt.Fprintf(&b, "- Discord 訊息 ID / Discord Message ID: %s\n\n", discordID)

	b.WriteString("完整訊息內容 / Complete Message:\n")
	b.WriteString(r.Message + "\n\n")

	b.WriteString("系統資訊 / System Information:\n")
	fmt.Fprintf(&b, "- 伺服器時間 / Server Time: %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- 案件編號 / Case ID: %s\n\n", r.ID)

	b.WriteString(ruler + "\n")
	return b.String()
}
