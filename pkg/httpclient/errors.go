package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
)

// errorEnvelope mirrors the httputil.Response error shape returned by the
// listings API.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an error carrying the matching apperrors sentinel. The body is fully
// consumed and closed.
func ParseResponseError(resp *http.Response, peer string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", peer, resp.StatusCode, err)
	}

	code, message := "", string(body)
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		code, message = env.Error.Code, env.Error.Message
	}

	sentinel := apperrors.FromStatus(resp.StatusCode)
	if code == "" {
		if sentinel != nil {
			return fmt.Errorf("%s returned status %d: %w: %s", peer, resp.StatusCode, sentinel, message)
		}
		return fmt.Errorf("%s returned status %d: %s", peer, resp.StatusCode, message)
	}

	return &apperrors.AppError{
		Code:    code,
		Message: fmt.Sprintf("%s: %s", peer, message),
		Status:  resp.StatusCode,
		Err:     sentinel,
	}
}
