package ports

import "context"

const (
	MarketInitialized    Topic = "Market Initialized"
	CompleteSetsMinted   Topic = "Complete Sets Minted"
	CompleteSetsRedeemed Topic = "Complete Sets Redeemed"
	MarketResolved       Topic = "Market Resolved"
	WinningsRedeemed     Topic = "Winnings Redeemed"
	ProfitsClaimed       Topic = "Profits Claimed"
	MarketExpired        Topic = "Market Expired"
)

type Topic string

// Topics lists every topic events are published on.
var Topics = []Topic{
	MarketInitialized,
	CompleteSetsMinted,
	CompleteSetsRedeemed,
	MarketResolved,
	WinningsRedeemed,
	ProfitsClaimed,
	MarketExpired,
}

type EventPublisher interface {
	Publish(ctx context.Context, topic Topic, message any) error
	Close()
}
