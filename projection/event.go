package projection

// Event is a gift card domain event. The set of implementations is closed.
type Event interface {
	CardID() string
	isEvent()
}

// Issued activates a card with Amount as both initial and remaining value.
type Issued struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// Redeemed takes Amount off an active card.
type Redeemed struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

func (e Issued) CardID() string   { return e.ID }
func (e Redeemed) CardID() string { return e.ID }

func (Issued) isEvent()   {}
func (Redeemed) isEvent() {}
