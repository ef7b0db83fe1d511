package domain

type EventType string

const (
	EventMarketInitialized    EventType = "market_initialized"
	EventCompleteSetsMinted   EventType = "complete_sets_minted"
	EventCompleteSetsRedeemed EventType = "complete_sets_redeemed"
	EventMarketResolved       EventType = "market_resolved"
	EventWinningsRedeemed     EventType = "winnings_redeemed"
	EventProfitsClaimed       EventType = "profits_claimed"
	EventMarketExpired        EventType = "market_expired"
)

// MarketEvent is emitted once the change it describes is committed.
type MarketEvent struct {
	Type      EventType `json:"type"`
	MarketId  string    `json:"market_id"`
	Owner     string    `json:"owner,omitempty"`
	Amount    uint64    `json:"amount,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Timestamp int64     `json:"timestamp"`
}
