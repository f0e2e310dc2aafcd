package models

// AccountUsage summarizes one account's metered capacity.
type AccountUsage struct {
	AccountID  string
	TotalBytes int64
	UsedBytes  int64
	Files      int64
}
