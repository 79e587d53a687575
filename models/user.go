package models

import (
	"context"
	"errors"
	"strconv"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;uniqueIndex:uniq_username" json:"username"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Name      string    `gorm:"size:255" json:"name"`
	Role      UserRole  `gorm:"type:enum('admin','operator');not null;default:'operator'" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u User) GetId() int {
	return u.ID
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Password string   `json:"password" binding:"required,min=8"`
	Name     string   `json:"name" binding:"required"`
	Role     UserRole `json:"role" binding:"required"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if input.Role != UserRoleAdmin && input.Role != UserRoleOperator {
		return nil, utils.NewValidationError("invalid role")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username: input.Username,
		Password: string(hashed),
		Name:     input.Name,
		Role:     input.Role,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		if IsDuplicateKeyError(err) {
			return nil, utils.NewValidationError("username already exists")
		}
		return nil, err
	}
	return &user, nil
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Login checks the credentials and issues a JWT registered in redis. The
// redis entry is what the auth middleware consults, so revoking it logs the
// user out immediately.
func Login(ctx context.Context, input *LoginInput) (*LoginResult, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", input.Username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("invalid username or password")
		}
		return nil, err
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, utils.NewValidationError("account is disabled")
	}
	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		return nil, utils.NewValidationError("invalid username or password")
	}

	token, err := utils.JwtGenerate(user.ID, user.Name, string(user.Role))
	if err != nil {
		return nil, err
	}

	if err := config.SetRedisValue("token:"+token, strconv.Itoa(user.ID), 24*time.Hour); err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "Login", "Cannot register token in redis", user.ID, err)
		return nil, errors.New("login unavailable, try again")
	}

	return &LoginResult{Token: token, User: &user}, nil
}

// Logout revokes the active token.
func Logout(ctx context.Context) error {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return nil
	}
	return config.RemoveRedisKey("token:" + token)
}
