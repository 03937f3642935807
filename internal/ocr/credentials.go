package ocr

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Credentials is a decoded service-account JSON document.
type Credentials struct {
	JSON      []byte
	ProjectID string
	ClientID  string
}

type serviceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// DecodeCredentials turns the base64 environment value into Credentials.
// It is called once at startup; the result is shared by every OCR call.
func DecodeCredentials(encoded string) (*Credentials, error) {
	const op = "DecodeCredentials"

	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, WrapOCRError(op, ErrMissingCredentials, "")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some deployments strip the padding
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, WrapOCRError(op, ErrInvalidCredentials, "value is not base64 encoded")
		}
	}

	var sa serviceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, WrapOCRError(op, ErrInvalidCredentials, "decoded value is not JSON")
	}

	return &Credentials{
		JSON:      raw,
		ProjectID: sa.ProjectID,
		ClientID:  sa.ClientEmail,
	}, nil
}
