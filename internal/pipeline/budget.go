package pipeline

import "fmt"

// budget caps the number of steps one run may take
type budget struct {
	max  int
	used int
}

func newBudget(max int) *budget {
	if max < 1 {
		max = 1
	}
	return &budget{max: max}
}

func (b *budget) step(name string) error {
	if b.used >= b.max {
		return fmt.Errorf("%w: %d steps used before %s", ErrBudgetExhausted, b.used, name)
	}
	b.used++
	return nil
}
