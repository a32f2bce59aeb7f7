package customer

import (
	"context"
	"io"
	"log/slog"

	"customer-report/internal/domain"
)

// FileReader reads customers from the seed file. The file is decoded on the
// first Read. Not safe for concurrent use.
type FileReader struct {
	path      string
	customers []domain.Customer
	loaded    bool
	pos       int
	logger    *slog.Logger
}

// NewFileReader creates a reader for the seed file at path.
func NewFileReader(path string, logger *slog.Logger) *FileReader {
	return &FileReader{
		path:   path,
		logger: logger.With("component", "customer-reader", "file", path),
	}
}

func (r *FileReader) Read(_ context.Context) (domain.Customer, error) {
	if !r.loaded {
		customers, err := LoadCustomers(r.path)
		if err != nil {
			return domain.Customer{}, err
		}
		r.customers = customers
		r.loaded = true
		r.logger.Info("loaded customers", "count", len(customers))
	}

	if r.pos >= len(r.customers) {
		return domain.Customer{}, io.EOF
	}
	c := r.customers[r.pos]
	r.pos++
	r.logger.Debug("reading next customer", "index", r.pos-1, "customer_id", c.ID)
	return c, nil
}
