package notify

import (
	"fmt"
	"strings"

	"bourbonwatch/internal/model"
)

var tierColors = map[int]int{1: 0xFF0000, 2: 0xFF6600, 3: 0xFFAA00, 4: 0x00AA00}

func tierLabelUpper(tier int) string {
	return strings.ToUpper(model.TierLabel(tier))
}

func priceText(l model.Listing) string {
	if l.Price == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", *l.Price)
}

func ageText(e model.CatalogEntry) string {
	if e.Age == "" {
		return "NAS"
	}
	return e.Age
}

// FormatSMS renders the compact single-message alert text.
func FormatSMS(find model.NewFind) string {
	return fmt.Sprintf("[%s] %s\n%s @ %s (#%s)\nQty: %d | Rating: %.1f/10",
		tierLabelUpper(find.Entry.RarityTier), find.Entry.Name,
		priceText(find.Listing), find.Store.StoreName, find.Store.StoreNumber,
		find.Store.Quantity, find.Entry.AverageRating)
}

// FormatEmail renders the subject, HTML body and plain-text body.
func FormatEmail(find model.NewFind) (subject, html, text string) {
	e, st := find.Entry, find.Store
	label := tierLabelUpper(e.RarityTier)
	subject = fmt.Sprintf("[Bourbon Hunter] %s: %s in stock!", label, e.Name)

	htmlColors := map[int]string{1: "#ff0000", 2: "#ff6600", 3: "#ffaa00", 4: "#00aa00"}
	color, ok := htmlColors[e.RarityTier]
	if !ok {
		color = "#666"
	}

	html = fmt.Sprintf(`<div style="font-family: Georgia, serif; max-width: 600px; margin: 0 auto; background: #1a1a2e; color: #eee; padding: 20px; border-radius: 8px;">
<h1 style="color: #d4a574; margin: 0 0 10px;">PA Bourbon Hunter</h1>
<div style="background: %s; color: white; display: inline-block; padding: 4px 12px; border-radius: 4px; font-weight: bold; font-size: 12px;">TIER %d — %s</div>
<h2 style="color: #fff; margin: 10px 0;">%s</h2>
<p style="color: #aaa;">%s</p>
<table style="width: 100%%; color: #eee;">
<tr><td>Store</td><td>%s (#%s)</td></tr>
<tr><td>Address</td><td>%s</td></tr>
<tr><td>Quantity</td><td>%d</td></tr>
<tr><td>Price</td><td>%s</td></tr>
<tr><td>Proof</td><td>%.1f</td></tr>
<tr><td>Age</td><td>%s</td></tr>
<tr><td>Rating</td><td>%.1f/10</td></tr>
</table>
</div>`,
		color, e.RarityTier, label, e.Name, e.Distillery,
		st.StoreName, st.StoreNumber, st.Address, st.Quantity,
		priceText(find.Listing), e.Proof, ageText(e), e.AverageRating)

	text = fmt.Sprintf("%s\n%s\n\nStore: %s (#%s)\nAddress: %s\nQuantity: %d\nPrice: %s\nProof: %.1f\nAge: %s\nRating: %.1f/10\n",
		e.Name, e.Distillery, st.StoreName, st.StoreNumber, st.Address,
		st.Quantity, priceText(find.Listing), e.Proof, ageText(e), e.AverageRating)
	return subject, html, text
}

// DiscordEmbed renders the webhook embed object.
func DiscordEmbed(find model.NewFind) map[string]any {
	e, st := find.Entry, find.Store
	color, ok := tierColors[e.RarityTier]
	if !ok {
		color = 0x666666
	}

	field := func(name, value string, inline bool) map[string]any {
		return map[string]any{"name": name, "value": value, "inline": inline}
	}
	return map[string]any{
		"title": e.Name,
		"description": fmt.Sprintf("**%s** — Tier %d\n%s",
			tierLabelUpper(e.RarityTier), e.RarityTier, e.Distillery),
		"color": color,
		"fields": []map[string]any{
			field("Store", fmt.Sprintf("%s (#%s)", st.StoreName, st.StoreNumber), true),
			field("Quantity", fmt.Sprintf("%d", st.Quantity), true),
			field("Price", priceText(find.Listing), true),
			field("Rating", fmt.Sprintf("%.1f/10", e.AverageRating), true),
			field("Proof", fmt.Sprintf("%.1f", e.Proof), true),
			field("Age", ageText(e), true),
			field("Address", st.Address, false),
		},
		"footer": map[string]any{"text": "PA Bourbon Hunter"},
	}
}

// SlackBlocks renders the webhook block kit layout.
func SlackBlocks(find model.NewFind) []map[string]any {
	e, st := find.Entry, find.Store
	emojis := map[int]string{1: ":unicorn:", 2: ":fire:", 3: ":mag:", 4: ":white_check_mark:"}
	emoji, ok := emojis[e.RarityTier]
	if !ok {
		emoji = ":tumbler_glass:"
	}

	mrkdwn := func(text string) map[string]any {
		return map[string]any{"type": "mrkdwn", "text": text}
	}
	return []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": e.Name},
		},
		{
			"type": "section",
			"text": mrkdwn(fmt.Sprintf("%s *%s* — Tier %d\n_%s_",
				emoji, tierLabelUpper(e.RarityTier), e.RarityTier, e.Distillery)),
		},
		{
			"type": "section",
			"fields": []map[string]any{
				mrkdwn(fmt.Sprintf("*Store:*\n%s (#%s)", st.StoreName, st.StoreNumber)),
				mrkdwn(fmt.Sprintf("*Qty:*\n%d", st.Quantity)),
				mrkdwn(fmt.Sprintf("*Price:*\n%s", priceText(find.Listing))),
				mrkdwn(fmt.Sprintf("*Rating:*\n%.1f/10", e.AverageRating)),
				mrkdwn(fmt.Sprintf("*Proof:*\n%.1f", e.Proof)),
				mrkdwn(fmt.Sprintf("*Address:*\n%s", st.Address)),
			},
		},
		{"type": "divider"},
	}
}
