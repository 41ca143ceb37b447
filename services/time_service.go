package services

import "time"

// FormatTimestamp はUTCのRFC3339（秒未満まで）で返す。連続するターンの順序を保つため
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
