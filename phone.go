package account

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers written without a country prefix
const DefaultPhoneRegion = "US"

// NormalizePhone parses raw and formats it as E.164. An empty input is
// allowed and returned as is.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("phone number is not valid", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidRequest).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"field": "phone_number", "phone_number": raw})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
