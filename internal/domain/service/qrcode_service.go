package service

// QRCodeService renders login hand-off QR codes.
type QRCodeService interface {
	// GenerateLoginQR renders the authorization URL as a PNG QR code.
	GenerateLoginQR(authorizationURL string) ([]byte, error)
}
