package events

import (
	"encoding/json"

	"github.com/acme/gocatalog/pkg/messaging"
)

// ProductEvent signals that a product was created, updated or soft-deleted.
// The payload deliberately carries only the product ID; consumers re-fetch
// whatever state they need.
type ProductEvent struct {
	ID string `json:"id"`
}

func (e ProductEvent) Subject() string {
	return messaging.ProductEventsSubject
}

func (e ProductEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
