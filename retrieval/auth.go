package retrieval

import (
	"context"
	"fmt"
)

// AuthHeaderValue materializes the Authorization header for a
// connection. AuthNone yields the empty string; an unknown auth type is
// an error so a misconfigured request fails instead of going out
// unauthenticated.
func AuthHeaderValue(ctx context.Context, conn ConnectionDetails, secrets SecretSource) (string, error) {
	switch conn.AuthType {
	case AuthNone, "":
		return "", nil
	case AuthBasic:
		return "Basic " + conn.AuthID, nil
	case AuthBearer:
		return "Bearer " + conn.AuthID, nil
	case AuthSecret:
		if secrets == nil {
			return "", fmt.Errorf("auth type %q requires a secret source", conn.AuthType)
		}
		value, err := secrets.Resolve(ctx, conn.AuthID)
		if err != nil {
			return "", fmt.Errorf("resolving secret %q: %w", conn.AuthID, err)
		}
		return value, nil
	default:
		return "", fmt.Errorf("unsupported auth type %q", conn.AuthType)
	}
}
