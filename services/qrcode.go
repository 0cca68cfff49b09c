package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"math/big"
	"strings"

	"github.com/skip2/go-qrcode"
)

// QRCodeService renders payment URIs as PNG QR codes.
type QRCodeService struct {
	Size int
}

// NewQRCodeService creates a new QR code service
func NewQRCodeService() *QRCodeService {
	return &QRCodeService{Size: 256}
}

// Generate encodes content as a PNG.
func (s *QRCodeService) Generate(content string) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(s.Size)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateBase64 is Generate with the PNG base64-encoded for JSON transport.
func (s *QRCodeService) GenerateBase64(content string) (string, error) {
	png, err := s.Generate(content)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// PaymentURI builds an EIP-681 request. With a token contract it asks for an
// ERC-20 transfer of units to recipient; without one it points at recipient.
func PaymentURI(recipient, token string, chainID int64, units *big.Int) string {
	chain := ""
	if chainID > 0 {
		chain = fmt.Sprintf("@%d", chainID)
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Sprintf("ethereum:%s%s", recipient, chain)
	}
	return fmt.Sprintf("ethereum:%s%s/transfer?address=%s&uint256=%s", token, chain, recipient, units.String())
}
