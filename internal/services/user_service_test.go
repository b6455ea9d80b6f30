package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/auth"
	"github.com/amirrezabahramy/inquiry-system-server/internal/config"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
	"github.com/amirrezabahramy/inquiry-system-server/internal/utils"
)

func testConfig() *config.Config {
	return &config.Config{PasswordRegexp: "^.{8,}$"}
}

func signupInput(username string) SignupInput {
	return SignupInput{
		FirstName: "Test",
		LastName:  "User",
		Email:     username + "@example.com",
		Username:  username,
		Password:  "longenoughpassword",
	}
}

func TestUserService_Signup(t *testing.T) {
	db := utils.SetupTestDB(t, "inquiry_test_users", "users")
	svc := NewUserService(db, testConfig())
	require.NoError(t, svc.EnsureIndexes(context.Background()))

	user, err := svc.Signup(context.Background(), signupInput("alice"))
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.ID.IsZero())
	assert.NotEqual(t, "longenoughpassword", user.PasswordHash)
	assert.True(t, auth.CheckPasswordHash("longenoughpassword", user.PasswordHash))
}

func TestUserService_Signup_DuplicateUsername(t *testing.T) {
	db := utils.SetupTestDB(t, "inquiry_test_users", "users")
	svc := NewUserService(db, testConfig())
	require.NoError(t, svc.EnsureIndexes(context.Background()))

	_, err := svc.Signup(context.Background(), signupInput("bob"))
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), signupInput("bob"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "username is already taken", err.Error())
}

func TestUserService_Signup_Validation(t *testing.T) {
	db := utils.SetupTestDB(t, "inquiry_test_users", "users")
	svc := NewUserService(db, testConfig())

	_, err := svc.Signup(context.Background(), SignupInput{Username: "only"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindMissingParameter, apperr.KindOf(err))

	in := signupInput("carol")
	in.Password = "short"
	_, err = svc.Signup(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	in = signupInput("dave")
	in.Email = "not-an-email"
	_, err = svc.Signup(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUserService_Create_Roles(t *testing.T) {
	db := utils.SetupTestDB(t, "inquiry_test_users", "users")
	svc := NewUserService(db, testConfig())

	admin, err := svc.Create(context.Background(), CreateUserInput{
		SignupInput: signupInput("boss"),
		Role:        models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	_, err = svc.Create(context.Background(), CreateUserInput{
		SignupInput: signupInput("weird"),
		Role:        models.Role("director"),
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUserService_Authenticate(t *testing.T) {
	db := utils.SetupTestDB(t, "inquiry_test_users", "users")
	svc := NewUserService(db, testConfig())

	created, err := svc.Signup(context.Background(), signupInput("erin"))
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "erin", "longenoughpassword")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = svc.Authenticate(context.Background(), "erin", "wrongpassword")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.Authenticate(context.Background(), "nobody", "longenoughpassword")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.Authenticate(context.Background(), "", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindMissingParameter, apperr.KindOf(err))
}

func TestUserService_FindByID_NotFound(t *testing.T) {
	db := utils.SetupTestDB(t, "inquiry_test_users", "users")
	svc := NewUserService(db, testConfig())

	_, err := svc.FindByID(context.Background(), primitive.NewObjectID())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUserService_Options(t *testing.T) {
	db := utils.SetupTestDB(t, "inquiry_test_users", "users")
	svc := NewUserService(db, testConfig())

	_, err := svc.Signup(context.Background(), SignupInput{
		FirstName: "Frank", LastName: "Miller", Email: "frank@example.com",
		Username: "frank", Password: "longenoughpassword",
	})
	require.NoError(t, err)
	_, err = svc.Signup(context.Background(), SignupInput{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com",
		Username: "grace", Password: "longenoughpassword",
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateUserInput{
		SignupInput: signupInput("rootadmin"),
		Role:        models.RoleAdmin,
	})
	require.NoError(t, err)

	// Admins are not selectable recipients.
	all, err := svc.Options(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := svc.Options(context.Background(), "grace")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Grace", filtered[0].FirstName)
}
