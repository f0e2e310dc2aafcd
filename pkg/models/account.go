package models

// AccountKind selects the transfer backend for an account.
type AccountKind string

const (
	// KindDrive is a Google Drive service account driven through rclone.
	KindDrive AccountKind = "drive"
	// KindS3 is an S3-compatible destination uploaded to natively.
	KindS3 AccountKind = "s3"
)

// Account is one independently-metered storage destination.
type Account struct {
	ID             string
	Kind           AccountKind
	TotalBytes     int64
	UsedBytes      int64
	CredentialFile string
	S3             struct {
		Endpoint  string
		Bucket    string
		AccessKey string
		SecretKey string
	}
}

// FreeBytes returns the capacity still available on the account.
func (a *Account) FreeBytes() int64 {
	return a.TotalBytes - a.UsedBytes
}
