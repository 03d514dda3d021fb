package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/xeipuuv/gojsonschema"

	"github.com/verte-zerg/neotype/internal/model"
	"github.com/verte-zerg/neotype/internal/telemetry"
)

// Backend routes.
const (
	textPath        = "/typing/api/text/"
	startPath       = "/typing/api/start/"
	progressPath    = "/typing/api/progress/"
	completePath    = "/typing/api/complete/"
	batchPath       = "/api/batch-update/"
	leaderboardPath = "/api/leaderboard/"
)

const textSchema = `{
	"type": "object",
	"required": ["text", "word_count", "character_count"],
	"properties": {
		"text": {"type": "string", "minLength": 1},
		"word_count": {"type": "integer", "minimum": 1},
		"character_count": {"type": "integer", "minimum": 1}
	}
}`

const finalizeSchema = `{
	"type": "object",
	"required": ["success", "session"],
	"properties": {
		"success": {"type": "boolean"},
		"is_new_record": {"type": "boolean"},
		"session": {
			"type": "object",
			"required": ["wpm", "accuracy", "typing_time", "correct_chars", "incorrect_chars", "total_chars"],
			"properties": {
				"wpm": {"type": "number", "minimum": 0},
				"accuracy": {"type": "number", "minimum": 0, "maximum": 100},
				"typing_time": {"type": "number", "minimum": 0},
				"correct_chars": {"type": "integer", "minimum": 0},
				"incorrect_chars": {"type": "integer", "minimum": 0},
				"total_chars": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 4 << 20

// HTTP talks to the backend's REST endpoints.
type HTTP struct {
	base   *url.URL
	client *http.Client
	logger *slog.Logger
	schema *gojsonschema.Schema
	final  *gojsonschema.Schema
	cbor   cbor.EncMode
	zstd   *zstd.Encoder
}

// NewHTTP returns a client for the backend at baseURL.
func NewHTTP(baseURL string, timeout time.Duration, logger *slog.Logger) (*HTTP, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway url %q: scheme must be http or https", baseURL)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(textSchema))
	if err != nil {
		return nil, fmt.Errorf("compile text schema: %w", err)
	}
	final, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(finalizeSchema))
	if err != nil {
		return nil, fmt.Errorf("compile finalize schema: %w", err)
	}
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		base:   base,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		schema: schema,
		final:  final,
		cbor:   encMode,
		zstd:   encoder,
	}, nil
}

// FetchText requests a reference text sized for duration.
func (h *HTTP) FetchText(ctx context.Context, duration int, difficulty model.Difficulty) (model.TextSample, error) {
	query := url.Values{}
	query.Set("duration", strconv.Itoa(duration))
	query.Set("difficulty", string(difficulty))
	body, err := h.do(ctx, http.MethodGet, textPath, query, nil, nil)
	if err != nil {
		return model.TextSample{}, &TextFetchError{Reason: "request", Err: err}
	}
	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return model.TextSample{}, &TextFetchError{Reason: "malformed response", Err: err}
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return model.TextSample{}, &TextFetchError{Reason: "invalid response: " + strings.Join(details, "; ")}
	}
	var sample model.TextSample
	if err := json.Unmarshal(body, &sample); err != nil {
		return model.TextSample{}, &TextFetchError{Reason: "decode response", Err: err}
	}
	if err := ValidateSample(sample); err != nil {
		return model.TextSample{}, err
	}
	return sample, nil
}

// Arm registers a session and returns its token.
func (h *HTTP) Arm(ctx context.Context, duration int, text string) (string, error) {
	body, err := h.postJSON(ctx, startPath, map[string]any{
		"duration":     duration,
		"text_content": text,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		SessionID json.RawMessage `json:"session_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode start response: %v", ErrUnavailable, err)
	}
	token := strings.Trim(string(resp.SessionID), `"`)
	if token == "" || token == "null" {
		return "", fmt.Errorf("%w: start response without session id", ErrUnavailable)
	}
	return token, nil
}

// ReportProgress sends a mid-test snapshot.
func (h *HTTP) ReportProgress(ctx context.Context, token string, p Progress) error {
	_, err := h.postJSON(ctx, progressPath, struct {
		Token string `json:"session_id"`
		Progress
	}{Token: token, Progress: p})
	return err
}

// Finalize submits the session for authoritative scoring.
func (h *HTTP) Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResponse, error) {
	body, err := h.postJSON(ctx, completePath, req)
	if err != nil {
		return FinalizeResponse{}, err
	}
	// A rejected session may omit the result, so only check the shape once
	// the backend says it accepted it.
	var status struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return FinalizeResponse{}, fmt.Errorf("%w: decode complete response: %v", ErrUnavailable, err)
	}
	if !status.Success {
		return FinalizeResponse{}, fmt.Errorf("%w: session not accepted", ErrUnavailable)
	}
	if err := validateAgainst(h.final, body); err != nil {
		return FinalizeResponse{}, fmt.Errorf("%w: complete response: %v", ErrUnavailable, err)
	}
	var resp struct {
		Session     model.FinalResult `json:"session"`
		IsNewRecord bool              `json:"is_new_record"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return FinalizeResponse{}, fmt.Errorf("%w: decode complete response: %v", ErrUnavailable, err)
	}
	return FinalizeResponse{Result: resp.Session, IsNewRecord: resp.IsNewRecord}, nil
}

// UploadBatch posts queued sessions as zstd-compressed CBOR.
func (h *HTTP) UploadBatch(ctx context.Context, entries []telemetry.Entry) error {
	raw, err := h.cbor.Marshal(struct {
		Sessions   []telemetry.Entry `cbor:"sessions"`
		Compressed bool              `cbor:"compressed"`
	}{Sessions: entries, Compressed: true})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	compressed := h.zstd.EncodeAll(raw, nil)
	headers := map[string]string{
		"Content-Type":     "application/cbor",
		"Content-Encoding": "zstd",
	}
	_, err = h.do(ctx, http.MethodPost, batchPath, nil, bytes.NewReader(compressed), headers)
	return err
}

// Leaderboard fetches the top results for duration.
func (h *HTTP) Leaderboard(ctx context.Context, duration int) ([]model.LeaderboardRow, error) {
	query := url.Values{}
	query.Set("duration", strconv.Itoa(duration))
	body, err := h.do(ctx, http.MethodGet, leaderboardPath, query, nil, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Leaderboard []model.LeaderboardRow `json:"leaderboard"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode leaderboard: %v", ErrUnavailable, err)
	}
	return resp.Leaderboard, nil
}

func (h *HTTP) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return h.do(ctx, http.MethodPost, path, nil, bytes.NewReader(raw), map[string]string{
		"Content-Type": "application/json",
	})
}

func (h *HTTP) do(ctx context.Context, method, path string, query url.Values, body io.Reader, headers map[string]string) ([]byte, error) {
	target := *h.base
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawQuery = query.Encode()

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort close for response body.
			_ = cerr
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.logger.Debug("gateway request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s %s: %s", ErrUnavailable, method, path, resp.Status)
	}
	return data, nil
}

func validateAgainst(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("invalid: %s", strings.Join(details, "; "))
}
