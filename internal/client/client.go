package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/OliverSchlueter/openack/internal/fetchhandler"
	"github.com/OliverSchlueter/openack/internal/fetching"
	"github.com/OliverSchlueter/openack/internal/sending"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// Client talks to the send and the fetch service over HTTP.
type Client struct {
	sendURL  string
	fetchURL string
	http     *http.Client
}

type Configuration struct {
	SendURL  string
	FetchURL string
	Timeout  time.Duration
}

func New(cfg Configuration) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		sendURL:  strings.TrimRight(cfg.SendURL, "/"),
		fetchURL: strings.TrimRight(cfg.FetchURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

type File struct {
	Name    string
	Content []byte
}

type SendReq struct {
	From    string
	To      []string
	Message string
	Files   []File
}

// FetchResp is the decoded answer of one fetch.
type FetchResp struct {
	Messages   []fetching.Message
	Skipped    int
	Unarchived int
}

// APIError is returned for every non-2xx answer. Body holds the problem
// document as sent by the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Send posts req as multipart form. A partial delivery (207) is not an error,
// the per recipient outcome is in the result.
func (c *Client) Send(ctx context.Context, req SendReq) (*sending.Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("from", req.From); err != nil {
		return nil, err
	}
	for _, to := range req.To {
		if err := mw.WriteField("to", to); err != nil {
			return nil, err
		}
	}
	if err := mw.WriteField("message", req.Message); err != nil {
		return nil, err
	}
	for _, f := range req.Files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL+"/messages", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusMultiStatus, http.StatusInternalServerError:
		var res sending.Result
		if err := json.Unmarshal(data, &res); err != nil || res.Status == "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		if res.Status == sending.StatusFailed {
			return &res, sending.ErrDeliveryFailed
		}
		return &res, nil
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
}

// Fetch consumes all pending messages of the agent behind agentID.
func (c *Client) Fetch(ctx context.Context, agentID string) (*FetchResp, error) {
	u := c.fetchURL + "/messages?" + url.Values{"id": {agentID}}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var res FetchResp
	if err := json.Unmarshal(data, &res.Messages); err != nil {
		return nil, fmt.Errorf("could not decode messages: %w", err)
	}
	res.Skipped, _ = strconv.Atoi(resp.Header.Get(fetchhandler.HeaderSkipped))
	res.Unarchived, _ = strconv.Atoi(resp.Header.Get(fetchhandler.HeaderUnarchived))

	return &res, nil
}

// Directory returns the people known to the send service.
func (c *Client) Directory(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sendURL+"/directory", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var dir struct {
		People []string `json:"people"`
	}
	if err := json.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("could not decode directory: %w", err)
	}
	return dir.People, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set(requestIDHeader, uuid.NewString())
	return c.http.Do(req)
}
