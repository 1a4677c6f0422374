package features

// Flag names known at build time. Administrators may add more at runtime;
// these are the ones the built-in defaults and seeds reference.
const (
	FlagBankingAccountTypes = "BANKING_ACCOUNT_TYPES_ENABLED"
	FlagCryptoAccounts      = "CRYPTO_ACCOUNTS_ENABLED"
	FlagBillAutopay         = "BILL_AUTOPAY_ENABLED"
)

// DefaultRequirements returns the compiled-in requirement defaults. The
// provider serves them for flags whose stored payload is missing, and as the
// whole set when the store fails under FallbackDefaults.
func DefaultRequirements() RequirementSet {
	return RequirementSet{
		FlagBankingAccountTypes: {
			Service: LayerRequirements{
				"Create*": TypeList{"bnpl"},
				"Update*": TypeList{"bnpl"},
			},
			Repository: LayerRequirements{
				"CreateTyped": TypeList{"bnpl"},
				"UpdateTyped": TypeList{"bnpl"},
			},
		},
		FlagCryptoAccounts: {
			Service: LayerRequirements{
				"Create*": TypeList{"crypto"},
				"Update*": TypeList{"crypto"},
			},
			Repository: LayerRequirements{
				"CreateTyped": TypeList{"crypto"},
				"UpdateTyped": TypeList{"crypto"},
			},
		},
		FlagBillAutopay: {
			API: LayerRequirements{
				"/api/bills/{id}/autopay": TypeList{Wildcard},
			},
			Service: LayerRequirements{
				"SetAutoPay": TypeList{Wildcard},
			},
		},
	}
}
