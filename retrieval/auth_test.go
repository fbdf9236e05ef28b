package retrieval

import (
	"context"
	"errors"
	"testing"
)

type stubSecrets struct {
	values map[string]string
	err    error
}

func (s *stubSecrets) Resolve(ctx context.Context, name string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.values[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func TestAuthHeaderValue(t *testing.T) {
	secrets := &stubSecrets{values: map[string]string{"pacs-token": "Bearer from-secret"}}
	tests := []struct {
		name    string
		conn    ConnectionDetails
		want    string
		wantErr bool
	}{
		{"none", ConnectionDetails{AuthType: AuthNone}, "", false},
		{"unset defaults to none", ConnectionDetails{}, "", false},
		{"basic", ConnectionDetails{AuthType: AuthBasic, AuthID: "dXNlcjpwYXNz"}, "Basic dXNlcjpwYXNz", false},
		{"bearer", ConnectionDetails{AuthType: AuthBearer, AuthID: "tok"}, "Bearer tok", false},
		{"secret", ConnectionDetails{AuthType: AuthSecret, AuthID: "pacs-token"}, "Bearer from-secret", false},
		{"missing secret", ConnectionDetails{AuthType: AuthSecret, AuthID: "absent"}, "", true},
		{"unknown type", ConnectionDetails{AuthType: "Kerberos"}, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AuthHeaderValue(context.Background(), tc.conn, secrets)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("AuthHeaderValue: %v", err)
			}
			if got != tc.want {
				t.Errorf("header = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAuthSecretWithoutSource(t *testing.T) {
	conn := ConnectionDetails{AuthType: AuthSecret, AuthID: "pacs-token"}
	if _, err := AuthHeaderValue(context.Background(), conn, nil); err == nil {
		t.Errorf("secret auth without a secret source should fail")
	}
}
