// Package customer wires the customer report job: the seed data file, its
// reader, the report line writer and the birthday and transaction processors.
package customer

import (
	"fmt"
	"os"
	"path/filepath"

	"customer-report/internal/domain"

	"gopkg.in/yaml.v3"
)

// LoadCustomers decodes the seed file at path.
func LoadCustomers(path string) ([]domain.Customer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.ResourceError{Resource: path, Err: err}
	}
	defer f.Close()

	var customers []domain.Customer
	if err := yaml.NewDecoder(f).Decode(&customers); err != nil {
		return nil, fmt.Errorf("failed to decode customers from %s: %w", path, err)
	}
	return customers, nil
}

// SaveCustomers validates customers and writes them to path, replacing any
// previous file only once the new one is complete.
func SaveCustomers(path string, customers []domain.Customer) error {
	for i := range customers {
		if err := customers[i].Validate(); err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &domain.ResourceError{Resource: dir, Err: err}
	}
	defer os.Remove(tmp.Name())

	enc := yaml.NewEncoder(tmp)
	if err := enc.Encode(customers); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode customers: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode customers: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return &domain.ResourceError{Resource: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &domain.ResourceError{Resource: path, Err: err}
	}
	return nil
}
