package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlays"
)

// Draft is a client-side overlay draft; the stream id is supplied by the
// gateway from the active session.
type Draft struct {
	Kind     overlays.Kind
	Content  string
	Position geometry.Position
	Size     geometry.Size
}

// ConvertResult is a successful conversion: the opaque stream id and the
// manifest URL already resolved against the API base.
type ConvertResult struct {
	StreamID    string
	ManifestURL string
}

// API is the persistence surface the gateway drives. *Client implements it.
type API interface {
	ListOverlays(ctx context.Context, streamID string) ([]overlays.Overlay, error)
	CreateOverlay(ctx context.Context, streamID string, draft Draft) (overlays.Overlay, error)
	UpdateOverlay(ctx context.Context, id string, patch overlays.Patch) (overlays.Overlay, error)
	DeleteOverlay(ctx context.Context, id string) error
}

// Converter requests an RTSP to HLS conversion. *Client implements it.
type Converter interface {
	Convert(ctx context.Context, rtspURL string) (ConvertResult, error)
}

// Client is the HTTP client for the backend API. Server responses are
// validated here, at one boundary, so malformed payloads never reach the
// store or the rendering layer.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a Client for the API at base, e.g. "http://localhost:8080".
func NewClient(base string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse api base: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{base: u, http: hc}, nil
}

type convertResponse struct {
	HLSURL   string `json:"hls_url"`
	StreamID string `json:"stream_id"`
}

// Convert implements Converter. The returned hls_url is relative to the API
// base and is resolved to an absolute manifest URL here.
func (c *Client) Convert(ctx context.Context, rtspURL string) (ConvertResult, error) {
	var res convertResponse
	err := c.do(ctx, http.MethodPost, "/api/convert", nil,
		map[string]string{"rtsp_url": rtspURL}, &res)
	if err != nil {
		return ConvertResult{}, err
	}
	if res.StreamID == "" || res.HLSURL == "" {
		return ConvertResult{}, &RequestError{
			Kind: KindClientError,
			Op:   "convert",
			Err:  errors.New("malformed conversion response"),
		}
	}
	ref, err := url.Parse(res.HLSURL)
	if err != nil {
		return ConvertResult{}, &RequestError{
			Kind: KindClientError,
			Op:   "convert",
			Err:  fmt.Errorf("bad hls_url: %w", err),
		}
	}
	return ConvertResult{
		StreamID:    res.StreamID,
		ManifestURL: c.base.ResolveReference(ref).String(),
	}, nil
}

// ListOverlays implements API.ListOverlays.
func (c *Client) ListOverlays(ctx context.Context, streamID string) ([]overlays.Overlay, error) {
	q := url.Values{"stream_id": []string{streamID}}
	var raw []overlays.Overlay
	if err := c.do(ctx, http.MethodGet, "/api/overlays", q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]overlays.Overlay, 0, len(raw))
	for _, o := range raw {
		if err := sanitizeOverlay(&o); err != nil {
			// One bad record must not hide the rest; drop it.
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// CreateOverlay implements API.CreateOverlay.
func (c *Client) CreateOverlay(ctx context.Context, streamID string, draft Draft) (overlays.Overlay, error) {
	body := overlays.Draft{
		StreamID: streamID,
		Kind:     draft.Kind,
		Content:  draft.Content,
		Position: draft.Position,
		Size:     draft.Size,
	}
	var o overlays.Overlay
	if err := c.do(ctx, http.MethodPost, "/api/overlays", nil, body, &o); err != nil {
		return overlays.Overlay{}, err
	}
	if err := sanitizeOverlay(&o); err != nil {
		return overlays.Overlay{}, &RequestError{Kind: KindClientError, Op: "create overlay", Err: err}
	}
	return o, nil
}

// UpdateOverlay implements API.UpdateOverlay.
func (c *Client) UpdateOverlay(ctx context.Context, id string, patch overlays.Patch) (overlays.Overlay, error) {
	var o overlays.Overlay
	if err := c.do(ctx, http.MethodPut, "/api/overlays/"+url.PathEscape(id), nil, patch, &o); err != nil {
		return overlays.Overlay{}, err
	}
	if err := sanitizeOverlay(&o); err != nil {
		return overlays.Overlay{}, &RequestError{Kind: KindClientError, Op: "update overlay", Err: err}
	}
	return o, nil
}

// DeleteOverlay implements API.DeleteOverlay.
func (c *Client) DeleteOverlay(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/overlays/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, p string, q url.Values, in, out any) error {
	op := method + " " + p

	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &RequestError{Kind: KindClientError, Op: op, Err: err}
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	u := c.base.ResolveReference(&url.URL{Path: p})
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &RequestError{Kind: KindClientError, Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		kind := KindClientError
		if resp.StatusCode >= 500 {
			kind = KindTransient
		}
		return &RequestError{Kind: kind, Op: op, Err: decodeErrorBody(resp)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &RequestError{Kind: KindClientError, Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func decodeErrorBody(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

// sanitizeOverlay validates a server overlay record. Unknown kinds and
// missing ids are rejected; out-of-range geometry is defaulted in place so
// fallback handling lives here and nowhere else.
func sanitizeOverlay(o *overlays.Overlay) error {
	if o.ID == "" {
		return errors.New("overlay record is missing _id")
	}
	if !o.Kind.Valid() {
		return fmt.Errorf("unrecognized overlay type %q", o.Kind)
	}
	if o.Position.X < 0 {
		o.Position.X = 0
	}
	if o.Position.Y < 0 {
		o.Position.Y = 0
	}
	o.Size = geometry.FloorSize(o.Size)
	return nil
}
