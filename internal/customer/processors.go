package customer

import (
	"fmt"
	"strconv"
	"time"

	"customer-report/internal/batch"
	"customer-report/internal/domain"

	"github.com/go-playground/validator/v10"
)

// DefaultTransactionLimit is the number of transactions from which a customer
// is left out of the report.
const DefaultTransactionLimit = 5

// NewBirthdayFilter keeps customers born in the current month of the clock.
// The birthday's month is the calendar month as stored, whatever its offset;
// the verdict depends on when the item is processed, not when it was seeded.
func NewBirthdayFilter(now func() time.Time) *batch.FilterFunc[domain.Customer] {
	return &batch.FilterFunc[domain.Customer]{
		Name: "birthday not in current month",
		Predicate: func(c domain.Customer) bool {
			return c.Birthday.Month() == now().Month()
		},
	}
}

// NewTransactionValidator drops customers with limit or more transactions.
func NewTransactionValidator(limit int) *batch.Validating[domain.Customer] {
	v := validator.New()
	tag := "lt=" + strconv.Itoa(limit)
	return &batch.Validating[domain.Customer]{
		Filter: true,
		Validate: func(c domain.Customer) error {
			if err := v.Var(c.Transactions, tag); err != nil {
				return fmt.Errorf("customer %d has %d transactions, limit is %d", c.ID, c.Transactions, limit)
			}
			return nil
		},
	}
}
