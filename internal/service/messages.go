package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/likegate/internal/likeapi"
	"github.com/xxxsen/likegate/internal/pkg/timeutil"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func usageText() string {
	return "❌ Invalid command format. Please use: `/like <region> <uid>`"
}

func needsVerificationText(link string, expired bool, howToVerifyURL, vipAccessURL string) string {
	var b strings.Builder
	if expired {
		b.WriteString("⌛ Your previous verification link expired.\n\n")
	} else {
		b.WriteString("🚫 You have not completed the verification yet!\n\n")
	}
	fmt.Fprintf(&b, "🔗 [Complete the verification step](%s)\n", link)
	b.WriteString("✅ Once verified, send the same /like command again.")
	if howToVerifyURL != "" {
		fmt.Fprintf(&b, "\n\n❓ [How to verify](%s)", howToVerifyURL)
	}
	if vipAccessURL != "" {
		fmt.Fprintf(&b, "\n💎 [Skip verification with VIP access](%s)", vipAccessURL)
	}
	return b.String()
}

func rateLimitedResult(retryAfter time.Duration) *LikeResult {
	return &LikeResult{
		Outcome:    OutcomeRateLimited,
		RetryAfter: retryAfter,
		Text:       "❌ *Daily Limit Reached*\n\n⏳ Try again after: " + timeutil.FormatRemaining(retryAfter),
	}
}

func inProgressText() string {
	return "⏳ Your previous like request is still being processed. Please wait for its result."
}

func likeFailedText() string {
	return "❌ *Like Failed*\n\n" +
		"🚫 It seems the like could not be processed.\n" +
		"💡 Possible reasons:\n" +
		"- Daily limit reached\n" +
		"- Invalid UID or server\n\n" +
		"⏳ Try again later or contact support if the issue persists."
}

func likeSuccessText(name, targetID string, res *likeapi.LikeResult, now time.Time) string {
	return fmt.Sprintf("✅ *Like Sent Successfully!*\n\n"+
		"👤 *Player:* %s\n"+
		"🆔 *UID:* `%s`\n"+
		"👍 *Likes Before:* %d\n"+
		"✨ *Likes Added:* %d\n"+
		"🏆 *Total Likes Now:* %d\n"+
		"🕒 *Time:* %s UTC",
		escapeMarkdown(name), targetID, res.LikesBefore, res.LikesAdded, res.LikesAfter,
		now.UTC().Format("2006-01-02 15:04:05"))
}

func apiErrorText(targetID string, err error) string {
	cause := strings.ReplaceAll(err.Error(), "`", "'")
	return fmt.Sprintf("❌ *API Error*\n\n"+
		"📛 An error occurred while trying to send likes.\n"+
		"🧾 UID: `%s`\n"+
		"⚠️ Error: `%s`", targetID, cause)
}
