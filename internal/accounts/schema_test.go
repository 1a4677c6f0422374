package accounts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaWalksEmbeddedFields(t *testing.T) {
	var cache schemaCache
	schema := cache.schemaFor(&CreditDetails{})

	require.True(t, schema.accepts("institution"))
	require.True(t, schema.accepts("account_number"))
	require.True(t, schema.accepts("credit_limit"))
	require.False(t, schema.accepts("name"))
	require.False(t, schema.accepts("provider"))
}

func TestSchemaRequiredSubset(t *testing.T) {
	var cache schemaCache
	schema := cache.schemaFor(&BNPLDetails{})

	require.True(t, schema.requires("provider"))
	require.True(t, schema.requires("installments"))
	require.True(t, schema.requires("installment_amount"))
	require.False(t, schema.requires("first_due_at"))

	banking := cache.schemaFor(&CheckingDetails{})
	require.True(t, banking.requires("institution"))
	require.False(t, banking.requires("account_number"))
	require.False(t, banking.requires("overdraft_limit"))
}

func TestSchemaCachesByConcreteType(t *testing.T) {
	var cache schemaCache

	first := cache.schemaFor(&SavingsDetails{})
	second := cache.schemaFor(&SavingsDetails{})

	require.Equal(t, first.valid, second.valid)
	require.Len(t, cache.byType, 1)
}
