package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var customerValidate = validator.New()

// Customer is the record flowing through the customer report job.
type Customer struct {
	ID           int       `yaml:"id" json:"id" validate:"gte=0"`
	Name         string    `yaml:"name" json:"name" validate:"required"`
	Birthday     time.Time `yaml:"birthday" json:"birthday" validate:"required"`
	Transactions int       `yaml:"transactions" json:"transactions" validate:"gte=0"`
}

// Validate checks the structural validity of the record.
func (c *Customer) Validate() error {
	if err := customerValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid customer %d: %w", c.ID, err)
	}
	return nil
}

// String renders the line written by the report sink.
func (c Customer) String() string {
	return fmt.Sprintf("Customer(id=%d, name=%s, birthday=%s, transactions=%d)",
		c.ID, c.Name, c.Birthday.Format(time.DateOnly), c.Transactions)
}
