package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/resolve"
)

// runHTTP performs a single HTTP request and reports the response as
// data under the "response" key. Transport failures are data too: the
// response object carries status 0 and the error text, so downstream
// conditions can route on "ok" instead of the whole run failing.
// Deadline and cancellation errors still fail the node.
func runHTTP(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Node.HTTP
	nodeID := req.Node.ID

	url, err := resolve.String(cfg.URL, req.Scope)
	if err != nil {
		return nil, execErr(model.ExecConstruction, nodeID, fmt.Errorf("url: %w", err))
	}
	headers, err := resolve.StringMap(cfg.Headers, req.Scope)
	if err != nil {
		return nil, execErr(model.ExecConstruction, nodeID, fmt.Errorf("headers: %w", err))
	}
	query, err := resolve.StringMap(cfg.Query, req.Scope)
	if err != nil {
		return nil, execErr(model.ExecConstruction, nodeID, fmt.Errorf("query: %w", err))
	}
	body := ""
	if cfg.Body != nil {
		body, err = resolve.String(cfg.Body, req.Scope)
		if err != nil {
			return nil, execErr(model.ExecConstruction, nodeID, fmt.Errorf("body: %w", err))
		}
	}

	ctxlog.FromContext(ctx).Info("🌐 Making HTTP request.", "node", nodeID, "method", cfg.Method, "url", url)

	start := time.Now()
	res, err := req.Caps.HTTP.Do(ctx, &capability.HTTPRequest{
		Method:  cfg.Method,
		URL:     url,
		Headers: headers,
		Query:   query,
		Body:    body,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, capErr(nodeID, err, model.ExecProvider)
		}
		ctxlog.FromContext(ctx).Warn("HTTP request failed in transport.", "node", nodeID, "error", err)
		return &Response{Output: wrapHTTPResponse(&capability.HTTPResponse{
			Status:     0,
			StatusText: err.Error(),
			Duration:   time.Since(start),
		})}, nil
	}

	ctxlog.FromContext(ctx).Debug("HTTP response received.",
		"node", nodeID, "status", res.Status, "size", res.Size, "duration", res.Duration)
	return &Response{Output: wrapHTTPResponse(res)}, nil
}

// wrapHTTPResponse builds the {response: ...} output object. The inner
// object always matches model.HTTPResponseType so path checks done at
// validation time hold at runtime.
func wrapHTTPResponse(res *capability.HTTPResponse) cty.Value {
	headers := cty.MapValEmpty(cty.String)
	if len(res.Headers) > 0 {
		hv := make(map[string]cty.Value, len(res.Headers))
		for k, v := range res.Headers {
			hv[k] = cty.StringVal(v)
		}
		headers = cty.MapVal(hv)
	}
	return cty.ObjectVal(map[string]cty.Value{
		"response": cty.ObjectVal(map[string]cty.Value{
			"status":     cty.NumberIntVal(int64(res.Status)),
			"statusText": cty.StringVal(res.StatusText),
			"ok":         cty.BoolVal(res.Status >= 200 && res.Status < 300),
			"headers":    headers,
			"body":       cty.StringVal(res.Body),
			"duration":   cty.NumberIntVal(res.Duration.Milliseconds()),
			"size":       cty.NumberIntVal(res.Size),
		}),
	})
}
