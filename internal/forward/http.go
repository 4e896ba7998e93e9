package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lqhuy/ferry/internal/config"
	"github.com/lqhuy/ferry/internal/logging"
)

// HTTPForwarder POSTs raw file bytes to the downstream receiver with the
// transfer metadata carried in headers.
type HTTPForwarder struct {
	uploadURL   string
	serverToken string
	client      *http.Client
}

// NewHTTP builds the default forwarder from the forward config section.
func NewHTTP(cfg config.ForwardConfig) *HTTPForwarder {
	return &HTTPForwarder{
		uploadURL:   cfg.UploadURL,
		serverToken: cfg.ServerToken,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   cfg.ConnectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name implements Forwarder.
func (f *HTTPForwarder) Name() string { return "http" }

// forwardResponse is the downstream receiver's 2xx body. FilePath is
// optional; absent, the caller reports the file name it sent.
type forwardResponse struct {
	Success  bool   `json:"success"`
	FileID   any    `json:"file_id"`
	FilePath string `json:"file_path"`
	AltPath  string `json:"filePath"`
}

// Forward implements Forwarder.
func (f *HTTPForwarder) Forward(ctx context.Context, req Request) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.uploadURL, req.Body)
	if err != nil {
		return "", fmt.Errorf("build forward request: %w", err)
	}

	httpReq.Header.Set("X-File-Name", req.FileName)
	httpReq.Header.Set("X-File-Size", strconv.FormatUint(req.FileSize, 10))
	httpReq.Header.Set("X-File-ID", req.FileID)
	if req.FolderID != "" {
		httpReq.Header.Set("X-Folder-ID", req.FolderID)
	}
	token := req.UserToken
	if token == "" {
		token = f.serverToken
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.ContentLength = int64(req.FileSize)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("forward to %s: %w", f.uploadURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("downstream returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed forwardResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// A 2xx with an unreadable body still counts as delivered.
		logging.Debug("unparseable forward response", zap.Error(err))
		return req.FileName, nil
	}
	if parsed.FilePath != "" {
		return parsed.FilePath, nil
	}
	if parsed.AltPath != "" {
		return parsed.AltPath, nil
	}
	return req.FileName, nil
}
