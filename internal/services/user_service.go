package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/auth"
	"github.com/amirrezabahramy/inquiry-system-server/internal/config"
	"github.com/amirrezabahramy/inquiry-system-server/internal/db"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
)

// IUserService defines the interface for user-related operations.
// This allows for easier mocking in tests.
type IUserService interface {
	Signup(ctx context.Context, input SignupInput) (*models.User, error)
	Create(ctx context.Context, input CreateUserInput) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	Options(ctx context.Context, search string) ([]models.UserOption, error)
	EnsureIndexes(ctx context.Context) error
}

const usersCollection = "users"

// SignupInput is the public self-registration payload. Role is always user.
type SignupInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// CreateUserInput is the privileged creation payload; any valid role.
type CreateUserInput struct {
	SignupInput
	Role models.Role `json:"role"`
}

// userService implements IUserService.
type userService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewUserService creates a new UserService.
func NewUserService(database *mongo.Database, cfg *config.Config) IUserService {
	return &userService{db: database, cfg: cfg}
}

// EnsureIndexes creates the unique username index. Call once at startup.
func (s *userService) EnsureIndexes(ctx context.Context) error {
	collection := s.db.Collection(usersCollection)
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create username index: %w", err)
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func (s *userService) validateInput(in SignupInput) error {
	var missing []string
	if strings.TrimSpace(in.FirstName) == "" {
		missing = append(missing, "firstName")
	}
	if strings.TrimSpace(in.LastName) == "" {
		missing = append(missing, "lastName")
	}
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(in.Username) == "" {
		missing = append(missing, "username")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return apperr.MissingParameter("Fields required: %s", strings.Join(missing, ", "))
	}
	if !emailPattern.MatchString(in.Email) {
		return apperr.Validation("email address is not valid")
	}
	if ok, _ := regexp.MatchString(s.cfg.PasswordRegexp, in.Password); !ok {
		return apperr.Validation("password does not meet the requirements")
	}
	return nil
}

func (s *userService) insert(ctx context.Context, in SignupInput, role models.Role) (*models.User, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("unknown role %q", role)
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password for %s: %w", in.Username, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Username:     strings.ToLower(strings.TrimSpace(in.Username)),
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	collection := s.db.Collection(usersCollection)
	result, err := collection.InsertOne(ctx, user)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, apperr.Validation("username is already taken")
		}
		return nil, db.Translate(fmt.Errorf("error inserting user %s: %w", user.Username, err))
	}
	user.ID = result.InsertedID.(primitive.ObjectID)
	return user, nil
}

// Signup registers a self-service account with the user role.
func (s *userService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	return s.insert(ctx, input, models.RoleUser)
}

// Create registers an account with an explicit role. Callers gate access.
func (s *userService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	return s.insert(ctx, input.SignupInput, input.Role)
}

// Authenticate verifies username/password and returns the account.
// The same Forbidden error covers unknown username and wrong password so the
// response does not leak which usernames exist.
func (s *userService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, apperr.MissingParameter("Fields required: username, password")
	}

	var user models.User
	collection := s.db.Collection(usersCollection)
	err := collection.FindOne(ctx, bson.M{"username": strings.ToLower(username)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.Forbidden("invalid username or password")
		}
		return nil, db.Translate(fmt.Errorf("error finding user %s: %w", username, err))
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperr.Forbidden("invalid username or password")
	}
	return &user, nil
}

// FindByID returns the user with the given id.
func (s *userService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	collection := s.db.Collection(usersCollection)
	err := collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("User not found.")
		}
		return nil, db.Translate(fmt.Errorf("error finding user %s: %w", userID.Hex(), err))
	}
	return &user, nil
}

const maxUserOptions = 100

// Options lists plain-role users for recipient selection, optionally
// narrowed by a name search. The result set is bounded.
func (s *userService) Options(ctx context.Context, search string) ([]models.UserOption, error) {
	filter := bson.M{"role": models.RoleUser}
	if search != "" {
		quoted := regexp.QuoteMeta(search)
		filter["$or"] = bson.A{
			bson.M{"first_name": bson.M{"$regex": quoted, "$options": "i"}},
			bson.M{"last_name": bson.M{"$regex": quoted, "$options": "i"}},
		}
	}

	collection := s.db.Collection(usersCollection)
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "first_name": 1, "last_name": 1}).
		SetSort(bson.D{{Key: "first_name", Value: 1}}).
		SetLimit(maxUserOptions)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, db.Translate(fmt.Errorf("error listing user options: %w", err))
	}
	defer cursor.Close(ctx)

	userOptions := []models.UserOption{}
	if err := cursor.All(ctx, &userOptions); err != nil {
		return nil, db.Translate(fmt.Errorf("error decoding user options: %w", err))
	}
	return userOptions, nil
}
