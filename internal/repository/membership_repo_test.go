package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/models"
)

func TestMembershipRepositoryIsMember(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMembershipRepository(db)

	student := models.User{Name: "Ayu", Email: "ayu@example.com", Role: models.RoleStudent}
	rep := models.User{Name: "Budi", Email: "budi@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&student).Error)
	require.NoError(t, db.Create(&rep).Error)

	require.NoError(t, db.Create(&models.ClassMember{ClassID: 1, UserID: student.ID, Role: models.RoleStudent}).Error)
	require.NoError(t, db.Create(&models.ClassMember{ClassID: 1, UserID: rep.ID, Role: models.RoleClassRep}).Error)

	ok, err := repo.IsMember(context.Background(), student.ID, 1, "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IsMember(context.Background(), student.ID, 1, models.RoleClassRep)
	require.NoError(t, err)
	require.False(t, ok, "plain member must not pass a class-rep check")

	ok, err = repo.IsMember(context.Background(), rep.ID, 1, models.RoleClassRep)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IsMember(context.Background(), student.ID, 2, "")
	require.NoError(t, err)
	require.False(t, ok, "membership is per class")
}

func TestMembershipRepositoryFindClassRep(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMembershipRepository(db)

	rep := models.User{Name: "Budi", Email: "budi@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&rep).Error)
	require.NoError(t, db.Create(&models.ClassMember{ClassID: 1, UserID: rep.ID, Role: models.RoleClassRep}).Error)

	found, err := repo.FindClassRep(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, rep.Email, found.Email)

	_, err = repo.FindClassRep(context.Background(), 2)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
