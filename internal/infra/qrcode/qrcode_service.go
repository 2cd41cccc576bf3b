// Package qrcode renders login hand-off QR codes.
package qrcode

import (
	"lens/internal/domain/service"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

type qrcodeService struct {
	size                 int
	errorCorrectionLevel qrcode.RecoveryLevel
}

// NewQRCodeService creates a new QR code service instance
func NewQRCodeService(size int, errorCorrectionLevel string) service.QRCodeService {
	var level qrcode.RecoveryLevel
	switch errorCorrectionLevel {
	case "L":
		level = qrcode.Low
	case "M":
		level = qrcode.Medium
	case "Q":
		level = qrcode.High
	case "H":
		level = qrcode.Highest
	default:
		level = qrcode.Medium
	}

	return &qrcodeService{
		size:                 size,
		errorCorrectionLevel: level,
	}
}

// GenerateLoginQR renders the authorization URL as a PNG QR code so a login
// started on one device can be completed on another.
func (s *qrcodeService) GenerateLoginQR(authorizationURL string) ([]byte, error) {
	code, err := qrcode.New(authorizationURL, s.errorCorrectionLevel)
	if err != nil {
		return nil, errors.Wrap(err, "create qr code")
	}

	png, err := code.PNG(s.size)
	if err != nil {
		return nil, errors.Wrap(err, "render qr png")
	}

	return png, nil
}
