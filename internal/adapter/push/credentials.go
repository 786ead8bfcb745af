package push

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// MessagingScope is the OAuth scope required by the FCM HTTP v1 API.
const MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// Credentials authenticate a Client against one Firebase project.
type Credentials struct {
	ProjectID   string
	TokenSource oauth2.TokenSource
}

// LoadCredentials reads a service account key file. The returned token source
// mints a new access token whenever the current one is about to expire.
// projectID, when set, overrides the project named in the key file.
func LoadCredentials(ctx context.Context, path, projectID string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read push credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, MessagingScope)
	if err != nil {
		return Credentials{}, fmt.Errorf("parse push credentials: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return Credentials{}, errors.New("push credentials name no project and PUSH_PROJECT_ID is not set")
	}
	return Credentials{ProjectID: projectID, TokenSource: creds.TokenSource}, nil
}

// StaticCredentials wraps a pre-issued access token. It is never refreshed, so
// sends start failing with domain.ErrPushUnauthorized once it expires.
func StaticCredentials(projectID, accessToken string) Credentials {
	return Credentials{
		ProjectID:   projectID,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	}
}
