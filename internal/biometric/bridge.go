// Package biometric enrolls and identifies employees by fingerprint. Capture
// and template matching happen in the vendor SDK behind a local bridge
// service; this package only talks to that bridge over HTTP.
package biometric

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrBridgeUnavailable = errors.New("fingerprint bridge unavailable")
	ErrNoMatch           = errors.New("no matching fingerprint")
	ErrNotEnrolled       = errors.New("user has no enrolled fingerprint")
	ErrInvalidTemplate   = errors.New("invalid fingerprint template")
)

// DeviceStatus is the scanner state reported by the bridge.
type DeviceStatus struct {
	Connected bool   `json:"connected"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Matcher compares two base64 templates. Bridge implements it; tests swap in
// fakes.
type Matcher interface {
	Status(ctx context.Context) (DeviceStatus, error)
	Match(ctx context.Context, template1, template2 string) (bool, error)
}

// Bridge is a client for one local bridge process. It is created once by the
// caller and passed to the Service; it holds no device state of its own.
type Bridge struct {
	baseURL string
	client  *http.Client
}

func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	return &Bridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *Bridge) Status(ctx context.Context) (DeviceStatus, error) {
	var out struct {
		DeviceStatus
		Success bool `json:"success"`
	}
	if err := b.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return DeviceStatus{}, err
	}
	return out.DeviceStatus, nil
}

func (b *Bridge) Match(ctx context.Context, template1, template2 string) (bool, error) {
	req := map[string]string{"template1": template1, "template2": template2}
	var out struct {
		Success bool   `json:"success"`
		Matched bool   `json:"matched"`
		Error   string `json:"error"`
	}
	if err := b.do(ctx, http.MethodPost, "/match", req, &out); err != nil {
		return false, err
	}
	if !out.Success {
		return false, errors.Wrapf(ErrBridgeUnavailable, "match failed: %s", out.Error)
	}
	return out.Matched, nil
}

// do sends one JSON request. Transport failures and bridge-side errors both
// surface as ErrBridgeUnavailable.
func (b *Bridge) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode bridge request")
		}
		body = bytes.NewReader(buf)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build bridge request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrapf(ErrBridgeUnavailable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return errors.Wrapf(ErrBridgeUnavailable, "%s %s: status %d %s", method, path, resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrBridgeUnavailable, "%s %s: decode: %v", method, path, err)
	}
	return nil
}
