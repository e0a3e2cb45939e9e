package providers

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/florianilch/decentstore/internal/provider"
)

// Provider type names.
const (
	DropboxName     = "dropbox"
	GoogleDriveName = "google_drive"
	FileSystemName  = "file_system"
)

// DropboxService talks to Dropbox as a public PKCE client with offline access.
var DropboxService = Service{
	Name: DropboxName,
	Endpoint: oauth2.Endpoint{
		AuthURL:   "https://www.dropbox.com/oauth2/authorize",
		TokenURL:  "https://api.dropboxapi.com/oauth2/token",
		AuthStyle: oauth2.AuthStyleInParams,
	},
	APIURL: "https://api.dropboxapi.com",
	AuthParams: map[string]string{
		"token_access_type": "offline",
	},
	Probe: func(ctx context.Context, apiURL string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/2/files/list_folder", strings.NewReader(`{"path":""}`))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	},
}

// GoogleDriveService talks to Google Drive, restricted to the application data folder.
var GoogleDriveService = Service{
	Name: GoogleDriveName,
	Endpoint: oauth2.Endpoint{
		AuthURL:   endpoints.Google.AuthURL,
		TokenURL:  endpoints.Google.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	},
	APIURL: "https://www.googleapis.com",
	Scopes: []string{"https://www.googleapis.com/auth/drive.appdata"},
	AuthParams: map[string]string{
		"access_type": "offline",
		"prompt":      "consent",
	},
	Probe: func(ctx context.Context, apiURL string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/drive/v3/files?pageSize=1&spaces=appDataFolder", nil)
	},
}

var (
	// Dropbox is the Dropbox provider type. Requires the client_id option.
	Dropbox = RemoteType(DropboxService)

	// GoogleDrive is the Google Drive provider type. Requires the client_id option.
	GoogleDrive = RemoteType(GoogleDriveService)

	// FileSystem is the local directory provider type. Requires the root option.
	FileSystem = provider.Type{Name: FileSystemName, New: newFileSystemProvider}
)

// Defaults returns the provider types known to every storage instance.
func Defaults() []provider.Type {
	return []provider.Type{Dropbox, FileSystem, GoogleDrive}
}
