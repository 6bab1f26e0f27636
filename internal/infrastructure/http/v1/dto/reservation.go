package dto

import (
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain/reservation"
)

// ReserveRequest places a time-boxed hold on available stock.
type ReserveRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
	Origin    string         `json:"origin" binding:"required"`
	OriginID  *string        `json:"originId,omitempty"`

	// TTLSeconds overrides the default hold duration.
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// ToInput converts the request to a service input.
func (r *ReserveRequest) ToInput() (reservation.ReserveInput, error) {
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return reservation.ReserveInput{}, apperror.NewValidation("invalid product id").
			WithDetail("field", "productId")
	}

	in := reservation.ReserveInput{
		ProductID: productID,
		Quantity:  r.Quantity,
		Origin:    reservation.OriginType(r.Origin),
		TTL:       time.Duration(r.TTLSeconds) * time.Second,
		Comment:   r.Comment,
	}

	if r.OriginID != nil {
		originID, err := id.Parse(*r.OriginID)
		if err != nil {
			return reservation.ReserveInput{}, apperror.NewValidation("invalid origin id").
				WithDetail("field", "originId")
		}
		in.OriginID = &originID
	}

	return in, nil
}
