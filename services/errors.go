package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// エラーの種類。HTTP ステータスへの変換は controllers だけが行う
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("upstream model error")
	ErrStore      = errors.New("store error")

	ErrUsernameTaken = fmt.Errorf("%w: username already exists", ErrValidation)

	ErrUserExists = fmt.Errorf("%w: user_id already exists", ErrValidation)
)

// UpstreamError はモデル呼び出しの失敗。レスポンスがなければ StatusCode は0
type UpstreamError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Transient はリトライで成功しうるかを返す
func (e *UpstreamError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return true
	case e.StatusCode == 0:
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, errEmptyReply)
	default:
		return false
	}
}

var errEmptyReply = errors.New("empty reply")

func upstreamError(provider string, status int, err error) error {
	return &UpstreamError{Provider: provider, StatusCode: status, Err: err}
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func isTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient()
	}
	return false
}
