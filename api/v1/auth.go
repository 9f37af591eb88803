package v1

// LoginRequest authenticates the admin account configured for this
// service and returns a bearer token.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"admin"`
	Password string `json:"password" binding:"required" example:"123456"`
}

type LoginResponseData struct {
	AccessToken string `json:"accessToken"`
}

type LoginResponse struct {
	Response
	Data LoginResponseData `json:"data"`
}
