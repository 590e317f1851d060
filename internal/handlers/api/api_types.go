package api

import (
	"time"

	"github.com/khanghh/tenantauth/internal/tokens"
	"github.com/khanghh/tenantauth/model"
	"github.com/khanghh/tenantauth/params"
)

type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code        int              `json:"code"`
	Message     string           `json:"message"`
	LockedUntil *time.Time       `json:"lockedUntil,omitempty"`
	Errors      []APIErrorDetail `json:"errors,omitempty"`
}

type APIErrorDetail struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func NewDataResponse(data any) APIResponse {
	return APIResponse{
		APIVersion: params.APIVersion,
		Data:       data,
	}
}

func NewErrorResponse(code int, message string, details ...APIErrorDetail) APIResponse {
	return APIResponse{
		APIVersion: params.APIVersion,
		Error: &APIErrorInfo{
			Code:    code,
			Message: message,
			Errors:  details,
		},
	}
}

type loginRequest struct {
	CompanyCode string `json:"companyCode"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DeviceInfo  string `json:"deviceInfo"`
}

type providerLoginRequest struct {
	CompanyCode string `json:"companyCode"`
	Token       string `json:"token"`
	DeviceInfo  string `json:"deviceInfo"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceInfo   string `json:"deviceInfo"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type UserInfoResponse struct {
	ID          string     `json:"id"`
	Tenant      string     `json:"tenant"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type LoginResponse struct {
	TokenResponse
	User        UserInfoResponse `json:"user"`
	Permissions []string         `json:"permissions"`
}

type ProfileResponse struct {
	User        UserInfoResponse `json:"user"`
	Roles       []string         `json:"roles"`
	Permissions []string         `json:"permissions"`
}

func newUserInfo(account *model.Account) UserInfoResponse {
	return UserInfoResponse{
		ID:          formatID(account.ID),
		Tenant:      account.TenantCode,
		Email:       account.Email,
		Name:        account.Name,
		LastLoginAt: account.LastLoginAt,
	}
}

func newTokenResponse(pair *tokens.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}
}
