package model

// AuthUser - API 토큰에서 꺼낸 호출자 정보
type AuthUser struct {
	Subject string
	Scope   string
}

// TokenResponse - 발급한 API 토큰
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}
