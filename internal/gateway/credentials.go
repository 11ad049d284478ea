package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/brahimakil/appointment-backend-database-synch/internal/config"
)

// buildApp constructs a firebase App from a service-account
// credential assembled from environment fields, built explicitly from
// PRIMARY_*/STANDBY_* fields rather than a
// GOOGLE_APPLICATION_CREDENTIALS file path.
func buildApp(ctx context.Context, cred config.Credential) (*firebase.App, error) {
	if !cred.Valid() {
		return nil, fmt.Errorf("gateway: incomplete credential for project %q", cred.ProjectID)
	}

	credJSON, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal credential: %w", err)
	}

	conf := &firebase.Config{ProjectID: cred.ProjectID}
	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsJSON(credJSON))
	if err != nil {
		return nil, fmt.Errorf("gateway: init firebase app for %q: %w", cred.ProjectID, err)
	}
	return app, nil
}
