package accounts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mwhitfield/ledgerline/internal/features"
)

// Registered account type ids.
const (
	TypeChecking = "checking"
	TypeSavings  = "savings"
	TypeCredit   = "credit"
	TypeBNPL     = "bnpl"
	TypeCrypto   = "crypto"
)

// Account type categories.
const (
	CategoryBanking = "banking"
	CategoryLending = "lending"
	CategoryCrypto  = "crypto"
)

var (
	// ErrEmptyTypeID indicates a registration with no type id.
	ErrEmptyTypeID = errors.New("accounts: type id is required")
	// ErrNilDetails indicates a registration without a details constructor.
	ErrNilDetails = errors.New("accounts: details constructor is required")
	// ErrDuplicateType indicates a type id registration conflict.
	ErrDuplicateType = errors.New("accounts: type id already registered")
	// ErrUnknownType indicates a lookup for an unregistered type id.
	ErrUnknownType = errors.New("accounts: unknown account type")
)

// Registration describes one account type: its catalog metadata, the flag
// that gates it (empty means always available), and the constructor for its
// concrete details payload.
type Registration struct {
	TypeID      string
	Name        string
	Description string
	Category    string
	FeatureFlag string
	NewDetails  func() Details
}

func (r Registration) clone() Registration {
	return r
}

// Registry stores account type registrations keyed by type id. It is
// populated once at startup and read-only thereafter; lookups are safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry constructs an empty account type registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds an account type after normalising and validating it.
func (r *Registry) Register(reg Registration) error {
	id := strings.ToLower(strings.TrimSpace(reg.TypeID))
	if id == "" {
		return ErrEmptyTypeID
	}
	if reg.NewDetails == nil {
		return fmt.Errorf("%w: %s", ErrNilDetails, id)
	}

	reg.TypeID = id
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Description = strings.TrimSpace(reg.Description)
	reg.Category = strings.ToLower(strings.TrimSpace(reg.Category))
	reg.FeatureFlag = strings.TrimSpace(reg.FeatureFlag)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, id)
	}
	r.entries[id] = reg
	return nil
}

// MustRegister wraps Register and panics on error for boot-time declarations.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Get fetches the registration for a type id.
func (r *Registry) Get(typeID string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[strings.ToLower(strings.TrimSpace(typeID))]
	if !ok {
		return Registration{}, false
	}
	return reg.clone(), true
}

// All returns every registration sorted by category then type id.
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		list = append(list, reg.clone())
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Category == list[j].Category {
			return list[i].TypeID < list[j].TypeID
		}
		return list[i].Category < list[j].Category
	})
	return list
}

// TypeIDs returns the registered type ids in sorted order.
func (r *Registry) TypeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset clears the registry. Intended for test use only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Registration)
}

// NewDefaultRegistry returns a registry populated with the built-in account
// types.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(Registration{
		TypeID:      TypeChecking,
		Name:        "Checking",
		Description: "Day-to-day spending account",
		Category:    CategoryBanking,
		NewDetails:  func() Details { return &CheckingDetails{} },
	})
	r.MustRegister(Registration{
		TypeID:      TypeSavings,
		Name:        "Savings",
		Description: "Interest-bearing savings account",
		Category:    CategoryBanking,
		NewDetails:  func() Details { return &SavingsDetails{} },
	})
	r.MustRegister(Registration{
		TypeID:      TypeCredit,
		Name:        "Credit Card",
		Description: "Revolving credit account",
		Category:    CategoryBanking,
		NewDetails:  func() Details { return &CreditDetails{} },
	})
	r.MustRegister(Registration{
		TypeID:      TypeBNPL,
		Name:        "Buy Now Pay Later",
		Description: "Installment plan account",
		Category:    CategoryLending,
		FeatureFlag: features.FlagBankingAccountTypes,
		NewDetails:  func() Details { return &BNPLDetails{} },
	})
	r.MustRegister(Registration{
		TypeID:      TypeCrypto,
		Name:        "Crypto",
		Description: "Exchange or wallet holding",
		Category:    CategoryCrypto,
		FeatureFlag: features.FlagCryptoAccounts,
		NewDetails:  func() Details { return &CryptoDetails{} },
	})
	return r
}
