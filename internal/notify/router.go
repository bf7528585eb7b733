// Package notify routes new finds to alert channels with per-channel
// cooldowns. Channel senders are independent: one failing or disabled
// channel never blocks the others.
package notify

import (
	"context"
	"log/slog"
	"time"

	"bourbonwatch/internal/model"
)

// ChannelDashboard is the passive channel: always routed to, never
// dispatched. The web UI reads the same storage the scan writes.
const ChannelDashboard = "dashboard"

// Sender is the uniform capability implemented by every alert channel.
// Send reports success; failures are expected to be logged by the sender
// and surface only as false.
type Sender interface {
	Channel() string
	Enabled() bool
	Send(ctx context.Context, find model.NewFind) bool
}

// AlertLog is the storage capability the router needs for cooldowns.
type AlertLog interface {
	HasRecentAlert(ctx context.Context, catalogID, channel string, window time.Duration) (bool, error)
	InsertAlertRecord(ctx context.Context, rec *model.AlertRecord) error
}

// Router selects channels by rarity tier and enforces the cooldown window
// per (catalog entry, channel) pair.
type Router struct {
	alerts       AlertLog
	senders      map[string]Sender
	tierChannels map[int][]string
	cooldown     time.Duration
	log          *slog.Logger
}

// NewRouter creates a Router over the given senders.
func NewRouter(alerts AlertLog, senders []Sender, tierChannels map[int][]string,
	cooldown time.Duration, log *slog.Logger) *Router {
	byName := make(map[string]Sender, len(senders))
	for _, s := range senders {
		byName[s.Channel()] = s
	}
	return &Router{
		alerts:       alerts,
		senders:      byName,
		tierChannels: tierChannels,
		cooldown:     cooldown,
		log:          log,
	}
}

// Route dispatches one new find to every channel its tier maps to, skipping
// channels inside their cooldown window. Returns the channels actually sent.
func (r *Router) Route(ctx context.Context, find model.NewFind) []string {
	channels, ok := r.tierChannels[find.Entry.RarityTier]
	if !ok {
		channels = []string{ChannelDashboard}
	}

	var sent []string
	for _, channel := range channels {
		if channel == ChannelDashboard {
			continue
		}

		sender, ok := r.senders[channel]
		if !ok || !sender.Enabled() {
			continue
		}

		recent, err := r.alerts.HasRecentAlert(ctx, find.Entry.ID, channel, r.cooldown)
		if err != nil {
			r.log.Error("cooldown check", "entry", find.Entry.ID, "channel", channel, "error", err)
			continue
		}
		if recent {
			r.log.Debug("alert cooldown active", "entry", find.Entry.ID, "channel", channel)
			continue
		}

		if !sender.Send(ctx, find) {
			continue
		}

		rec := model.AlertRecord{
			CatalogID: find.Entry.ID,
			Channel:   channel,
			Message:   FormatSMS(find),
		}
		if find.Listing.ID != 0 {
			id := find.Listing.ID
			rec.ListingID = &id
		}
		if err := r.alerts.InsertAlertRecord(ctx, &rec); err != nil {
			r.log.Error("record alert", "entry", find.Entry.ID, "channel", channel, "error", err)
		}
		sent = append(sent, channel)
	}
	return sent
}

// TestAll sends a synthetic find on every enabled channel, bypassing tier
// routing and cooldowns. Used by the notification test endpoint.
func (r *Router) TestAll(ctx context.Context) map[string]bool {
	find := model.NewFind{
		Entry: model.CatalogEntry{
			ID:            "test",
			Name:          "Test Bourbon (Not Real)",
			Distillery:    "Test Distillery",
			RarityTier:    model.TierAllocated,
			AverageRating: 8.0,
			Proof:         100.0,
			Age:           "10 years",
			MSRP:          49.99,
		},
		Listing: model.Listing{SourceCode: "99999", Price: ptr(49.99)},
		Store: model.StoreStock{
			StoreNumber: "0000",
			StoreName:   "Test Store",
			Address:     "123 Test St, Philadelphia, PA 19103",
			Quantity:    3,
		},
	}

	results := make(map[string]bool)
	for name, sender := range r.senders {
		if !sender.Enabled() {
			continue
		}
		results[name] = sender.Send(ctx, find)
	}
	return results
}

func ptr(f float64) *float64 { return &f }
