package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	"github.com/brovar/digimarket-backend/pkg/pagination"
)

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.User{}))
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB, email string, role enums.UserRole, createdAt time.Time) models.User {
	t.Helper()
	user := models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		Role:         role,
		Status:       enums.UserStatusActive,
		CreatedAt:    createdAt,
	}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

func TestRepositoryFindByEmail(t *testing.T) {
	conn := setupUsersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seeded := seedUser(t, conn, "buyer@example.com", enums.UserRoleBuyer, time.Now())

	found, err := repo.FindByEmail(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)
	assert.Equal(t, enums.UserRoleBuyer, found.Role)

	_, err = repo.FindByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryUpdateStatus(t *testing.T) {
	conn := setupUsersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seeded := seedUser(t, conn, "seller@example.com", enums.UserRoleSeller, time.Now())

	require.NoError(t, repo.UpdateStatus(ctx, seeded.ID, enums.UserStatusInactive))

	found, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserStatusInactive, found.Status)
}

func TestRepositoryListFiltersAndPaginates(t *testing.T) {
	conn := setupUsersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	seedUser(t, conn, "a@example.com", enums.UserRoleBuyer, base)
	second := seedUser(t, conn, "b@example.com", enums.UserRoleSeller, base.Add(time.Minute))
	third := seedUser(t, conn, "c@example.com", enums.UserRoleSeller, base.Add(2*time.Minute))

	sellerRole := enums.UserRoleSeller
	sellers, err := repo.List(ctx, ListFilter{Role: &sellerRole})
	require.NoError(t, err)
	require.Len(t, sellers, 2)
	assert.Equal(t, third.ID, sellers[0].ID)
	assert.Equal(t, second.ID, sellers[1].ID)

	page, err := repo.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	cursor := pagination.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}
	rest, err := repo.List(ctx, ListFilter{Cursor: &cursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a@example.com", rest[0].Email)
}
