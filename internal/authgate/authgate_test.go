package authgate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authRows(includeBilling bool) *sqlmock.Rows {
	cols := []string{
		"id", "user_id", "domain_id", "name", "is_active", "last_used_at",
		"id", "user_id", "name", "txt_verified",
		"id", "email", "name",
		"id", "user_id", "email_limit", "email_used",
	}
	if includeBilling {
		return sqlmock.NewRows(cols).AddRow(
			"key-1", "user-1", "dom-1", "prod", true, nil,
			"dom-1", "user-1", "example.com", true,
			"user-1", "a@example.com", "Ada",
			"bill-1", "user-1", 1000, 10,
		)
	}
	return sqlmock.NewRows(cols).AddRow(
		"key-1", "user-1", "dom-1", "prod", true, nil,
		"dom-1", "user-1", "example.com", true,
		"user-1", "a@example.com", "Ada",
		nil, nil, nil, nil,
	)
}

func TestResolveReturnsAuthContextWithBilling(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sum := sha256.Sum256([]byte("raw-key"))
	hash := hex.EncodeToString(sum[:])

	mock.ExpectQuery("FROM domain_api_keys").
		WithArgs(hash).
		WillReturnRows(authRows(true))

	auth, err := resolve(context.Background(), db, hash)
	require.NoError(t, err)
	assert.Equal(t, "user-1", auth.User.ID)
	assert.Equal(t, "example.com", auth.Domain.Name)
	require.NotNil(t, auth.Billing)
	assert.Equal(t, 1000, auth.Billing.EmailLimit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveWithoutBillingRowLeavesBillingNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hash := "deadbeef"
	mock.ExpectQuery("FROM domain_api_keys").
		WithArgs(hash).
		WillReturnRows(authRows(false))

	auth, err := resolve(context.Background(), db, hash)
	require.NoError(t, err)
	assert.Nil(t, auth.Billing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveUnknownKeyReturnsErrNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM domain_api_keys").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = resolve(context.Background(), db, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
