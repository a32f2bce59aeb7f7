package batch

import (
	"context"
	"fmt"

	"customer-report/internal/domain"
)

// Composite runs its processors in declared order, feeding each the output of
// the previous one. The first drop ends the chain.
type Composite[T any] struct {
	processors []ItemProcessor[T]
}

// NewComposite builds a processor chain.
func NewComposite[T any](processors ...ItemProcessor[T]) *Composite[T] {
	return &Composite[T]{processors: processors}
}

func (c *Composite[T]) Process(ctx context.Context, item T) (Result[T], error) {
	res := Kept(item)
	for _, p := range c.processors {
		var err error
		res, err = p.Process(ctx, res.Item)
		if err != nil {
			return Result[T]{}, err
		}
		if res.Dropped {
			return res, nil
		}
	}
	return res, nil
}

// FilterFunc keeps items for which the predicate returns true.
type FilterFunc[T any] struct {
	Name      string
	Predicate func(item T) bool
}

func (f *FilterFunc[T]) Process(_ context.Context, item T) (Result[T], error) {
	if f.Predicate == nil || f.Predicate(item) {
		return Kept(item), nil
	}
	return Dropped[T](f.Name), nil
}

// Validating checks items with Validate. In filter mode an invalid item is
// dropped; otherwise it fails the step with a *domain.ValidationError.
type Validating[T any] struct {
	Validate func(item T) error
	Filter   bool
}

func (v *Validating[T]) Process(_ context.Context, item T) (Result[T], error) {
	if v.Validate == nil {
		return Kept(item), nil
	}
	if err := v.Validate(item); err != nil {
		if v.Filter {
			return Dropped[T](err.Error()), nil
		}
		return Result[T]{}, &domain.ValidationError{Item: fmt.Sprint(item), Reason: err.Error()}
	}
	return Kept(item), nil
}

// ProcessorFunc adapts a function to ItemProcessor.
type ProcessorFunc[T any] func(ctx context.Context, item T) (Result[T], error)

func (f ProcessorFunc[T]) Process(ctx context.Context, item T) (Result[T], error) {
	return f(ctx, item)
}
