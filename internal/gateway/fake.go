package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory gateway for tests and the local simulator. It mints
// predictable intent ids and records calls; failures can be injected per
// operation.
type Fake struct {
	mu sync.Mutex

	CreateIntentErr error
	RefundErr       error

	intents     int
	refunds     int
	RefundCalls []string
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateIntentErr != nil {
		return nil, f.CreateIntentErr
	}

	f.intents++
	id := fmt.Sprintf("pi_fake_%06d", f.intents)
	return &Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *Fake) Refund(ctx context.Context, intentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RefundErr != nil {
		return "", f.RefundErr
	}

	f.refunds++
	f.RefundCalls = append(f.RefundCalls, intentID)
	return fmt.Sprintf("re_fake_%06d", f.refunds), nil
}

// RefundCount reports how many refunds were issued.
func (f *Fake) RefundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunds
}
