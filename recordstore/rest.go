package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"xdao.co/certanchor/cert"
)

// Client talks to the backend record API.
//
// Responses are wrapped as {"data": ...}; searches add "total". 404 maps to
// cert.KindNotFound and 409/422 (a transition the backend refused) to
// cert.KindInvalidTransition. Everything else is cert.KindGeneric.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string
}

var _ Store = (*Client)(nil)

func NewClient(baseURL, bearer string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Bearer:     bearer,
	}
}

type envelope[T any] struct {
	Data  T   `json:"data"`
	Total int `json:"total"`
}

func (c *Client) Create(ctx context.Context, in cert.NewCertificate) (cert.Certificate, error) {
	out, err := send[cert.Certificate](ctx, c, http.MethodPost, "/certificates", in)
	return out.Data, err
}

func (c *Client) Import(ctx context.Context, in []cert.NewCertificate) ([]cert.Certificate, error) {
	out, err := send[[]cert.Certificate](ctx, c, http.MethodPost, "/certificates/import", in)
	return out.Data, err
}

func (c *Client) Get(ctx context.Context, id string) (cert.Certificate, error) {
	out, err := send[cert.Certificate](ctx, c, http.MethodGet, "/certificates/"+url.PathEscape(id), nil)
	return out.Data, err
}

func (c *Client) Update(ctx context.Context, id string, patch cert.Patch) (cert.Certificate, error) {
	out, err := send[cert.Certificate](ctx, c, http.MethodPut, "/certificates/"+url.PathEscape(id), patch)
	return out.Data, err
}

func (c *Client) Approve(ctx context.Context, id string) (cert.Certificate, error) {
	out, err := send[cert.Certificate](ctx, c, http.MethodPut, "/certificates/"+url.PathEscape(id)+"/approve", struct{}{})
	return out.Data, err
}

func (c *Client) Revoke(ctx context.Context, id, reason string) (cert.Certificate, error) {
	body := map[string]string{"reason": reason}
	out, err := send[cert.Certificate](ctx, c, http.MethodPut, "/certificates/"+url.PathEscape(id)+"/revoke", body)
	return out.Data, err
}

func (c *Client) Search(ctx context.Context, q Query) (Page, error) {
	out, err := send[[]cert.Certificate](ctx, c, http.MethodPost, "/certificates/search", q.normalized())
	if err != nil {
		return Page{}, err
	}
	return Page{Items: out.Data, Total: out.Total}, nil
}

func (c *Client) CertificateType(ctx context.Context, id string) (cert.CertificateType, error) {
	out, err := send[cert.CertificateType](ctx, c, http.MethodGet, "/certificate-types/"+url.PathEscape(id), nil)
	return out.Data, err
}

func (c *Client) Organization(ctx context.Context, id string) (cert.Organization, error) {
	out, err := send[cert.Organization](ctx, c, http.MethodGet, "/organizations/"+url.PathEscape(id), nil)
	return out.Data, err
}

func send[T any](ctx context.Context, c *Client, method, path string, in any) (envelope[T], error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return envelope[T]{}, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return envelope[T]{}, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return doJSON[T](c, req)
}

func doJSON[T any](c *Client, req *http.Request) (envelope[T], error) {
	var out envelope[T]
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return out, cert.WrapError(cert.KindGeneric, "record store unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return out, statusError(req, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, cert.WrapError(cert.KindGeneric, "decode record store response", err)
	}
	return out, nil
}

func statusError(req *http.Request, resp *http.Response) error {
	var errBody struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errBody)
	detail := errBody.Message
	if detail == "" && errBody.Error != nil {
		detail = fmt.Sprint(errBody.Error)
	}
	msg := fmt.Sprintf("%s %s: http %d", req.Method, req.URL.Path, resp.StatusCode)
	if detail != "" {
		msg += ": " + detail
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return cert.NewError(cert.KindNotFound, msg)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return cert.NewError(cert.KindInvalidTransition, msg)
	default:
		return cert.NewError(cert.KindGeneric, msg)
	}
}
