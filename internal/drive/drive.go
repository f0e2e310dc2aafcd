// Package drive talks to Google Drive for everything except the
// transfers themselves: quota refresh, folder metadata, and
// enumeration of Drive-side sources.
package drive

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// service builds a Drive API client from an account's service-account
// credential file.
func service(ctx context.Context, credentialFile string, scope string) (*drivev3.Service, error) {
	data, err := os.ReadFile(credentialFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file %s: %v", credentialFile, err)
	}
	cfg, err := google.JWTConfigFromJSON(data, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account %s: %v", credentialFile, err)
	}
	svc, err := drivev3.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %v", err)
	}
	return svc, nil
}

// RefreshQuota queries each Drive account's live storage quota and
// updates its total capacity in place. Accounts whose quota cannot be
// fetched keep the configured default; the failure is reported but not
// fatal, matching the tool's offline-friendly behavior.
func RefreshQuota(ctx context.Context, accounts []models.Account) []error {
	var errs []error
	for i := range accounts {
		a := &accounts[i]
		if a.Kind != models.KindDrive {
			continue
		}
		svc, err := service(ctx, a.CredentialFile, drivev3.DriveMetadataReadonlyScope)
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %v", a.ID, err))
			continue
		}
		about, err := svc.About.Get().Fields("storageQuota").Context(ctx).Do()
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: failed to fetch quota: %v", a.ID, err))
			continue
		}
		if about.StorageQuota != nil && about.StorageQuota.Limit > 0 {
			a.TotalBytes = about.StorageQuota.Limit
		}
	}
	return errs
}

// FolderName fetches the display name of a Drive folder, used when a
// Drive-side source is uploaded as a folder.
func FolderName(ctx context.Context, credentialFile, folderID string) (string, error) {
	svc, err := service(ctx, credentialFile, drivev3.DriveMetadataReadonlyScope)
	if err != nil {
		return "", err
	}
	f, err := svc.Files.Get(folderID).Fields("name").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up folder %s: %v", folderID, err)
	}
	return f.Name, nil
}
