package matching

import (
	"sort"
	"sync"
)

type Registry struct {
	mu       sync.RWMutex
	matchers map[string]Matcher
}

func NewRegistry() *Registry {
	return &Registry{matchers: make(map[string]Matcher)}
}

// Register adds m, replacing any matcher already registered for its entity type.
func (r *Registry) Register(m Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchers[m.EntityType()] = m
}

func (r *Registry) Lookup(entityType string) (Matcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matchers[entityType]
	return m, ok
}

func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.matchers))
	for k := range r.matchers {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry holds the matchers for customers, cars and invoices.
func DefaultRegistry(phoneRegion string) *Registry {
	r := NewRegistry()
	r.Register(NewCustomerMatcher(phoneRegion))
	r.Register(NewCarMatcher())
	r.Register(NewInvoiceMatcher())
	return r
}

func NewCustomerMatcher(phoneRegion string) *FieldMatcher {
	return NewFieldMatcher("customers", "customers", "id", 0.25,
		Field{Name: "customer_name", Weight: 3, Key: true, Normalize: NormalizeName},
		Field{Name: "tax_id", Weight: 3, Block: true, Normalize: NormalizeCode},
		Field{Name: "phone", Weight: 2, Block: true, Normalize: PhoneNormalizer(phoneRegion)},
		Field{Name: "email", Weight: 2, Block: true, Normalize: NormalizeEmail},
	)
}

func NewCarMatcher() *FieldMatcher {
	return NewFieldMatcher("cars", "cars", "id", 0.3,
		Field{Name: "car_mark", Weight: 2, Key: true, Normalize: NormalizeCode},
		Field{Name: "car_number", Weight: 3, Key: true, Block: true, Normalize: NormalizeCarNumber},
		Field{Name: "serial_number", Weight: 3, Block: true, Normalize: NormalizeCode},
	)
}

func NewInvoiceMatcher() *FieldMatcher {
	return NewFieldMatcher("invoices", "invoices", "id", 0.5,
		Field{Name: "invoice_number", Weight: 4, Key: true, Normalize: NormalizeCode},
		Field{Name: "customer_code", Weight: 2, Block: true, Normalize: NormalizeCode},
		Field{Name: "invoice_date", Weight: 1, Normalize: NormalizeDate},
		Field{Name: "total_amount", Weight: 2, Normalize: NormalizeAmount},
	)
}
