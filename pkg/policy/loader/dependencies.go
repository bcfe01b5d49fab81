package loader

import (
	"log/slog"
	"net/http"

	"mercator-hq/luthien/pkg/audit"
	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/store"
	"mercator-hq/luthien/pkg/security/auth"

	openai "github.com/sashabaranov/go-openai"
)

// Settings carries backend parameters policies may need.
type Settings struct {
	// BackendURL is the API root, e.g. "https://api.openai.com/v1".
	BackendURL string

	// BackendAPIKey is attached to backend requests by add_backend_key.
	BackendAPIKey string
}

// Dependencies is the bundle handed to every constructor. Fields may be nil
// when the process does not provide them; constructors that need a missing
// dependency fail at load time.
type Dependencies struct {
	HTTPClient      *http.Client
	OpenAI          *openai.Client
	Settings        Settings
	Credentials     auth.CredentialLookup
	Audit           audit.Sink
	Store           store.Store
	Logger          *slog.Logger
	Instrumentation policy.Instrumentation
}
