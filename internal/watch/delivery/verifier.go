package delivery

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// TokenVerifier checks that an inbound webhook request was signed by the
// expected push-relay identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// idTokenVerifier validates Google-signed ID tokens: signature and audience
// via the idtoken validator, then the email_verified claim, then an exact
// match on the signing principal's email.
type idTokenVerifier struct {
	audience       string
	serviceAccount string
}

func NewIDTokenVerifier(audience, serviceAccount string) TokenVerifier {
	return &idTokenVerifier{
		audience:       audience,
		serviceAccount: serviceAccount,
	}
}

func (v *idTokenVerifier) Verify(ctx context.Context, token string) error {
	payload, err := idtoken.Validate(ctx, token, v.audience)
	if err != nil {
		return fmt.Errorf("invalid webhook token: %v", err)
	}

	if !claimBool(payload.Claims, "email_verified") {
		return errors.New("webhook token email is not verified")
	}

	email, _ := payload.Claims["email"].(string)
	if email != v.serviceAccount {
		return fmt.Errorf("webhook token signed by unexpected principal %q", email)
	}

	return nil
}

// claimBool tolerates both bool and "true" string encodings of a claim.
func claimBool(claims map[string]interface{}, name string) bool {
	switch value := claims[name].(type) {
	case bool:
		return value
	case string:
		return value == "true"
	default:
		return false
	}
}
