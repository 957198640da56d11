// Package cloudasr provides a speech-to-text backend for token-authenticated
// cloud ASR services that accept a base64 PCM payload in a JSON body.
//
// The access token is obtained with the OAuth2 client-credentials grant and
// cached until it expires. A request looks like:
//
//	{"format":"pcm","rate":16000,"channel":1,"cuid":"larder","token":"…","len":96000,"speech":"<base64>"}
//
// and a response like:
//
//	{"err_no":0,"err_msg":"success.","result":["放入牛奶两盒"]}
package cloudasr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/types"
)

var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithCUID sets the device identifier sent with every request. Defaults to
// "larder".
func WithCUID(cuid string) Option {
	return func(p *Provider) { p.cuid = cuid }
}

// WithHTTPClient replaces the HTTP client used for both token and recognition
// requests. Defaults to a client with a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithTokenSource replaces the client-credentials token source.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(p *Provider) { p.tokens = ts }
}

// Provider implements stt.Transcriber against a cloud ASR endpoint.
type Provider struct {
	endpoint   string
	cuid       string
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

// Error is returned when the service answers with a non-zero err_no.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cloudasr: service error %d: %s", e.Code, e.Message)
}

// New creates a Provider posting to endpoint and fetching tokens from
// tokenURL with clientID / clientSecret.
func New(endpoint, tokenURL, clientID, clientSecret string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("cloudasr: endpoint must not be empty")
	}
	p := &Provider{
		endpoint:   endpoint,
		cuid:       "larder",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	if p.tokens == nil {
		if tokenURL == "" || clientID == "" || clientSecret == "" {
			return nil, errors.New("cloudasr: tokenURL, clientID and clientSecret are required")
		}
		cc := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)
		p.tokens = cc.TokenSource(ctx)
	}
	return p, nil
}

type request struct {
	Format  string `json:"format"`
	Rate    int    `json:"rate"`
	Channel int    `json:"channel"`
	CUID    string `json:"cuid"`
	Token   string `json:"token"`
	Len     int    `json:"len"`
	Speech  string `json:"speech"`
}

type response struct {
	ErrNo  int      `json:"err_no"`
	ErrMsg string   `json:"err_msg"`
	Result []string `json:"result"`
}

// Transcribe posts pcm and returns the first recognition result.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) < 2 {
		return "", stt.ErrEmptyAudio
	}
	tok, err := p.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("cloudasr: fetch token: %w", err)
	}

	body, err := json.Marshal(request{
		Format:  "pcm",
		Rate:    types.SpeechFormat.SampleRate,
		Channel: types.SpeechFormat.Channels,
		CUID:    p.cuid,
		Token:   tok.AccessToken,
		Len:     len(pcm),
		Speech:  base64.StdEncoding.EncodeToString(pcm),
	})
	if err != nil {
		return "", fmt.Errorf("cloudasr: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("cloudasr: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudasr: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloudasr: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("cloudasr: read response body: %w", err)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("cloudasr: parse JSON response: %w", err)
	}
	if out.ErrNo != 0 {
		return "", &Error{Code: out.ErrNo, Message: out.ErrMsg}
	}
	if len(out.Result) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Result[0]), nil
}
