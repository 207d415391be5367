package donations

import (
	"fmt"
	"strings"
)

type OrderBy string

const (
	ByDate   OrderBy = "Date"
	ByRound  OrderBy = "Round"
	ByAmount OrderBy = "Amount"
	ByTokens OrderBy = "Tokens"
)

type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is the column and direction rows are sorted by.
type Order struct {
	By        OrderBy   `json:"by"`
	Direction Direction `json:"direction"`
}

// DefaultOrder is newest first.
func DefaultOrder() Order {
	return Order{By: ByDate, Direction: Desc}
}

// Toggle returns the order after clicking the by column: the active column
// flips from ASC to DESC, anything else sorts ASC.
func (o Order) Toggle(by OrderBy) Order {
	if o.By == by && o.Direction == Asc {
		return Order{By: by, Direction: Desc}
	}
	return Order{By: by, Direction: Asc}
}

// ParseOrder reads an order from query values. Empty values keep the
// default.
func ParseOrder(by, direction string) (Order, error) {
	o := DefaultOrder()
	if by != "" {
		switch {
		case strings.EqualFold(by, string(ByDate)):
			o.By = ByDate
		case strings.EqualFold(by, string(ByRound)):
			o.By = ByRound
		case strings.EqualFold(by, string(ByAmount)):
			o.By = ByAmount
		case strings.EqualFold(by, string(ByTokens)):
			o.By = ByTokens
		default:
			return Order{}, fmt.Errorf("%w: unknown order %q", ErrInvalidQuery, by)
		}
	}
	if direction != "" {
		switch strings.ToUpper(direction) {
		case string(Asc):
			o.Direction = Asc
		case string(Desc):
			o.Direction = Desc
		default:
			return Order{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidQuery, direction)
		}
	}
	return o, nil
}
