package source

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tendly/internal/errs"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorSnippet = 512
)

// NewHTTPClient - http.Client с таймаутом; таймаут - единственный
// механизм отмены сетевого запроса.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}
}

// CheckResponse переводит не-2xx ответ в ошибку нужного класса.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
	detail := strings.TrimSpace(string(body))
	err := fmt.Errorf("unexpected response %s", resp.Status)
	if detail != "" {
		err = fmt.Errorf("unexpected response %s: %s", resp.Status, detail)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return errs.Transient(resp.StatusCode, ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), err)
	default:
		return errs.Fatal("fetch page", err)
	}
}

// ParseRetryAfter понимает оба формата заголовка Retry-After:
// число секунд и HTTP-дату. Непонятное значение - 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// TransportError - ошибка соединения или таймаут, запрос можно повторить.
func TransportError(err error) error {
	return errs.Transient(0, 0, fmt.Errorf("request failed: %w", err))
}
