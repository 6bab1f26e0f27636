package dto

import (
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain/ledger"
)

// --- Request DTOs ---

// ApplyMovementRequest posts one stock movement through the ledger.
type ApplyMovementRequest struct {
	ProductID  string         `json:"productId" binding:"required"`
	Type       string         `json:"type" binding:"required"`
	Quantity   types.Quantity `json:"quantity" binding:"required"`
	UnitCost   types.Money    `json:"unitCost,omitempty"`
	LocationID *string        `json:"locationId,omitempty"`
	Lot        *string        `json:"lot,omitempty"`
	Comment    string         `json:"comment,omitempty"`
}

// ToInput converts the request to the ledger apply input. Manual API
// movements always carry the manual source type.
func (r *ApplyMovementRequest) ToInput() (ledger.ApplyInput, error) {
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return ledger.ApplyInput{}, apperror.NewValidation("invalid product id").
			WithDetail("field", "productId")
	}

	in := ledger.ApplyInput{
		ProductID: productID,
		Type:      ledger.MovementType(r.Type),
		Quantity:  r.Quantity,
		UnitCost:  r.UnitCost,
		Lot:       r.Lot,
		Comment:   r.Comment,
	}

	source := ledger.SourceManual
	in.SourceType = &source

	if r.LocationID != nil {
		locationID, err := id.Parse(*r.LocationID)
		if err != nil {
			return ledger.ApplyInput{}, apperror.NewValidation("invalid location id").
				WithDetail("field", "locationId")
		}
		in.LocationID = &locationID
	}

	return in, nil
}

// HistoryQuery filters the movement history listing.
type HistoryQuery struct {
	ProductID  string     `form:"productId"`
	LocationID string     `form:"locationId"`
	Type       string     `form:"type"`
	SourceType string     `form:"sourceType"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit      int        `form:"limit"`
	Offset     int        `form:"offset"`
}

// ToFilter converts the query to a domain history filter.
func (q *HistoryQuery) ToFilter() (ledger.HistoryFilter, error) {
	f := ledger.HistoryFilter{
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
		Offset: q.Offset,
	}

	if q.ProductID != "" {
		productID, err := id.Parse(q.ProductID)
		if err != nil {
			return f, apperror.NewValidation("invalid product id").
				WithDetail("field", "productId")
		}
		f.ProductID = &productID
	}
	if q.LocationID != "" {
		locationID, err := id.Parse(q.LocationID)
		if err != nil {
			return f, apperror.NewValidation("invalid location id").
				WithDetail("field", "locationId")
		}
		f.LocationID = &locationID
	}
	if q.Type != "" {
		f.Types = []ledger.MovementType{ledger.MovementType(q.Type)}
	}
	if q.SourceType != "" {
		st := ledger.SourceType(q.SourceType)
		f.SourceType = &st
	}

	return f, nil
}
