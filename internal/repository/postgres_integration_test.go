//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmeshcher/bonus-manager/internal/ledger"
	"github.com/mmeshcher/bonus-manager/internal/model"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*PostgresRepository, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)

	cleanup := func() {
		_ = repo.Close()
		_ = container.Terminate(ctx)
	}

	return repo, cleanup
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestIntegration_ClientLedger(t *testing.T) {
	ctx := context.Background()
	repo, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgID, err := repo.CreateOrganization(ctx, "Coffee")
	require.NoError(t, err)
	otherOrgID, err := repo.CreateOrganization(ctx, "Bakery")
	require.NoError(t, err)

	store := repo.ForOrganization(orgID)
	other := repo.ForOrganization(otherOrgID)

	client := &model.Client{Name: "Ann", Phone: "+79991234567", Balance: dec("100")}

	t.Run("create client", func(t *testing.T) {
		opening, err := store.CreateClient(ctx, client)
		require.NoError(t, err)
		require.NotZero(t, client.ID)
		assert.Equal(t, orgID, client.OrganizationID)
		assert.True(t, client.Balance.Equal(dec("100")))

		require.NotNil(t, opening)
		assert.NotZero(t, opening.ID)
		assert.True(t, opening.Amount.Equal(dec("100")))
		assert.Equal(t, model.DescriptionAccrual, opening.Description)
		assert.True(t, opening.BalanceAfter.Equal(dec("100")))
	})

	t.Run("duplicate phone in same organization", func(t *testing.T) {
		_, err := store.CreateClient(ctx, &model.Client{Name: "Ann2", Phone: "+79991234567", Balance: dec("5")})
		require.ErrorIs(t, err, ErrDuplicatePhone)
	})

	t.Run("same phone in another organization", func(t *testing.T) {
		opening, err := other.CreateClient(ctx, &model.Client{Name: "Ann", Phone: "+79991234567"})
		require.NoError(t, err)
		assert.Nil(t, opening, "zero balance has no opening entry")
	})

	t.Run("foreign client is not found", func(t *testing.T) {
		_, err := other.GetClient(ctx, client.ID)
		require.ErrorIs(t, err, ErrClientNotFound)

		_, _, err = other.MutateBalance(ctx, client.ID, ledger.Apply(dec("1")))
		require.ErrorIs(t, err, ErrClientNotFound)
	})

	t.Run("deduction", func(t *testing.T) {
		c, entry, err := store.MutateBalance(ctx, client.ID, ledger.Apply(dec("-30")))
		require.NoError(t, err)
		assert.True(t, c.Balance.Equal(dec("70")))
		assert.True(t, entry.Amount.Equal(dec("-30")))
		assert.Equal(t, model.DescriptionDeduction, entry.Description)
		assert.True(t, entry.BalanceAfter.Equal(dec("70")))

		stored, err := store.GetClient(ctx, client.ID)
		require.NoError(t, err)
		assert.True(t, stored.Balance.Equal(dec("70")))
	})

	t.Run("zero amount leaves no trace", func(t *testing.T) {
		_, _, err := store.MutateBalance(ctx, client.ID, ledger.Apply(decimal.Zero))
		require.ErrorIs(t, err, ledger.ErrZeroAmount)

		history, err := store.ClientHistory(ctx, client.ID)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("reset", func(t *testing.T) {
		c, entry, err := store.MutateBalance(ctx, client.ID, ledger.Reset())
		require.NoError(t, err)
		assert.True(t, c.Balance.IsZero())
		assert.True(t, entry.Amount.Equal(dec("-70")))
		assert.True(t, entry.BalanceAfter.IsZero())
	})

	t.Run("history newest first", func(t *testing.T) {
		history, err := store.ClientHistory(ctx, client.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, model.DescriptionReset, history[0].Description)
		assert.Equal(t, model.DescriptionDeduction, history[1].Description)
		assert.Equal(t, model.DescriptionAccrual, history[2].Description)

		stored, err := store.GetClient(ctx, client.ID)
		require.NoError(t, err)

		running := decimal.Zero
		for i := len(history) - 1; i >= 0; i-- {
			running = running.Add(history[i].Amount)
			assert.True(t, running.Equal(history[i].BalanceAfter), "entry %d", i)
		}
		assert.True(t, running.Equal(stored.Balance), "running %s, balance %s", running, stored.Balance)

		again, err := store.ClientHistory(ctx, client.ID)
		require.NoError(t, err)
		assert.Equal(t, history, again)
	})

	t.Run("spent in window", func(t *testing.T) {
		spent, err := store.SpentSince(ctx, time.Now().AddDate(0, -1, 0))
		require.NoError(t, err)
		assert.True(t, spent.Equal(dec("100")), "spent = %s", spent)

		spent, err = other.SpentSince(ctx, time.Now().AddDate(0, -1, 0))
		require.NoError(t, err)
		assert.True(t, spent.IsZero())
	})

	t.Run("search", func(t *testing.T) {
		found, err := store.ListClients(ctx, "an")
		require.NoError(t, err)
		require.Len(t, found, 1)

		found, err = store.ListClients(ctx, "9991")
		require.NoError(t, err)
		require.Len(t, found, 1)

		found, err = store.ListClients(ctx, "%")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("delete cascades history", func(t *testing.T) {
		require.NoError(t, store.DeleteClient(ctx, client.ID))

		history, err := store.ClientHistory(ctx, client.ID)
		require.NoError(t, err)
		assert.Empty(t, history)

		require.ErrorIs(t, store.DeleteClient(ctx, client.ID), ErrClientNotFound)
	})
}

func TestIntegration_UsersAndTemplates(t *testing.T) {
	ctx := context.Background()
	repo, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	userID, err := repo.CreateUser(ctx, "cashier", []byte("hash"))
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, "cashier", []byte("hash"))
	require.ErrorIs(t, err, ErrUserExists)

	u, err := repo.GetUserByUsername(ctx, "cashier")
	require.NoError(t, err)
	assert.Nil(t, u.OrganizationID)
	assert.False(t, u.IsPrivileged)

	orgID, err := repo.CreateOrganization(ctx, "Coffee")
	require.NoError(t, err)
	require.NoError(t, repo.AssignOrganization(ctx, "cashier", orgID))
	require.ErrorIs(t, repo.AssignOrganization(ctx, "nobody", orgID), ErrUserNotFound)
	require.ErrorIs(t, repo.AssignOrganization(ctx, "cashier", orgID+100), ErrOrganizationNotFound)

	u, err = repo.GetUserByID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, u.OrganizationID)
	assert.Equal(t, orgID, *u.OrganizationID)

	tpl, err := repo.GetOrCreateTemplate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultAccrualTemplate, tpl.AccrualTemplate)

	tpl.AccrualTemplate = "+[сумма]"
	require.NoError(t, repo.UpdateTemplate(ctx, tpl))

	tpl, err = repo.GetOrCreateTemplate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "+[сумма]", tpl.AccrualTemplate)
	assert.Equal(t, model.DefaultResetTemplate, tpl.ResetTemplate)
}
