package messaging

import (
	"fmt"
	"strings"

	"dhbvn-alerts/internal/models"
)

// Templates use Telegram HTML parse mode; WhatsApp delivery strips tags.

// FormatOutage renders a single outage entry.
func FormatOutage(o models.OutageRecord) string {
	return fmt.Sprintf("📍 <b>%s</b> (Feeder: %s)\n⚡ Started: %s\n🔧 Expected restoration: %s\n📝 Reason: %s",
		o.Area, o.Feeder, o.StartTime, o.RestorationTime, o.Reason)
}

func formatOutageList(outages []models.OutageRecord) string {
	parts := make([]string, len(outages))
	for i, o := range outages {
		parts[i] = fmt.Sprintf("%d. %s", i+1, FormatOutage(o))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// NewOutageAlert is the combined notification for all new outages of one
// poll in one district.
func NewOutageAlert(districtName string, outages []models.OutageRecord) string {
	if len(outages) == 1 {
		return fmt.Sprintf("⚠️ <b>New Outage Alert - %s</b>\n\n%s", districtName, FormatOutage(outages[0]))
	}
	return fmt.Sprintf("⚠️ <b>%d New Outages - %s</b>\n\n%s", len(outages), districtName, formatOutageList(outages))
}

// RestorationAlert is the per-outage notification sent when power returns.
func RestorationAlert(districtName, area, feeder string) string {
	return fmt.Sprintf("✅ <b>Power Restored - %s</b>\n\n📍 %s (Feeder: %s)\n\nPower has been restored in this area.",
		districtName, area, feeder)
}

// StatusMessage lists the current outages for a district, for the /status
// command and subscription confirmations.
func StatusMessage(districtName string, outages []models.OutageRecord) string {
	if len(outages) == 0 {
		return fmt.Sprintf("✨ No outages currently reported in %s.", districtName)
	}
	return fmt.Sprintf("<b>Current outages in %s:</b>\n\n%s", districtName, formatOutageList(outages))
}

// ConfirmationMessage acknowledges a new subscription and shows the
// district's current outages.
func ConfirmationMessage(districtName string, outages []models.OutageRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>Subscribed to %s alerts!</b>\n\n", districtName)
	if len(outages) > 0 {
		fmt.Fprintf(&b, "Current outages in %s:\n\n%s\n\n", districtName, formatOutageList(outages))
	} else {
		fmt.Fprintf(&b, "✨ No outages currently reported in %s.\n\n", districtName)
	}
	b.WriteString("You'll receive automatic notifications when:\n• New outages are reported\n• Outages are restored\n\n")
	b.WriteString("<b>Commands:</b>\n/status - View current outages\n/change - Update your district\n/stop - Unsubscribe from alerts\n/help - Show help")
	return b.String()
}

const (
	WelcomeMessage = "👋 <b>Welcome to DHBVN Outage Alerts!</b>\n\nGet instant updates about power outages in your district.\n\nPlease select your district to continue."

	UnsubscribeMessage = "✅ You've been unsubscribed from DHBVN alerts.\n\nSend /start anytime to subscribe again."

	ChangeDistrictMessage = "Please select your new district:"

	HelpMessage = "📱 <b>DHBVN Outage Alerts Help</b>\n\n<b>Available commands:</b>\n/start - Subscribe to alerts\n/status - View current outages\n/change - Update your district\n/stop - Unsubscribe from alerts\n/help - Show this help message\n\nYou'll receive automatic notifications when new outages occur or when power is restored."

	ErrorMessage = "❌ Sorry, something went wrong. Please try again later or send /help for assistance."

	InvalidCommandMessage = "❓ I didn't understand that command.\n\nSend:\n/start - to get started\n/status - to see current outages\n/change - to update your district\n/stop - to unsubscribe\n/help - for more information"

	RateLimitMessage = "⚠️ Too many messages. Please wait a moment before trying again."

	NotSubscribedMessage = "You're not subscribed yet. Send /start to pick a district."
)

// AlreadySubscribedMessage tells a user they already follow a district.
func AlreadySubscribedMessage(districtName string) string {
	return fmt.Sprintf("You're already subscribed to %s alerts.\n\nSend /change to update your district or /status to see current outages.", districtName)
}
