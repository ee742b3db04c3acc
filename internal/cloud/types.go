package cloud

import "github.com/nerrad567/canvas-link/internal/hubdata"

// RegisterRequest is the body of PUT devices.
type RegisterRequest struct {
	Name         string `json:"name"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Type         string `json:"type"`
	Model        string `json:"model"`
	Hostname     string `json:"hostname,omitempty"`
}

// IssuedCertificate is the device certificate material issued at registration.
type IssuedCertificate struct {
	PEM        string `json:"pem"`
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// Registration is the response of PUT devices. A response without a
// refresh token is not a completed registration.
type Registration struct {
	RefreshToken string            `json:"refreshToken"`
	AccessToken  string            `json:"accessToken"`
	ClientID     string            `json:"clientId"`
	Device       hubdata.Device    `json:"device"`
	Certificate  IssuedCertificate `json:"certificate"`
}

// Complete reports whether the registration carries credentials.
func (r Registration) Complete() bool {
	return r.RefreshToken != ""
}

// LinkedUser is the account linked to a device.
type LinkedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type linkResponse struct {
	User LinkedUser `json:"user"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type activationResponse struct {
	ActivationCode string `json:"activationCode"`
}

type hostnameRequest struct {
	Hostname string `json:"hostname"`
}

type deleteDeviceRequest struct {
	ID string `json:"id"`
}
