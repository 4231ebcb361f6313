package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/util"
	"go.uber.org/zap"
)

var _ Executor = new(httpExecutor)

// httpExecutor sends one request per data unit. Properties:
// url, method, headers, params (values may hold {$.path} tokens) and resultKey.
type httpExecutor struct {
	client    *http.Client
	url       string
	method    string
	headers   map[string]any
	params    map[string]any
	resultKey string
}

func NewHttpExecutor(spec *model.TaskSpec, conf Config) (Executor, error) {
	target := spec.StringProperty("url")
	if target == "" {
		return nil, fmt.Errorf("http task requires a url")
	}
	client := conf.HttpClient
	if client == nil {
		client = &http.Client{}
	}
	client = &http.Client{
		Transport:     client.Transport,
		CheckRedirect: client.CheckRedirect,
		Jar:           client.Jar,
		Timeout:       timeout(spec, conf.HttpTimeout),
	}
	method := spec.StringProperty("method")
	if method == "" {
		method = http.MethodPost
	}
	headers, _ := spec.Properties["headers"].(map[string]any)
	params, _ := spec.Properties["params"].(map[string]any)
	return &httpExecutor{
		client:    client,
		url:       target,
		method:    method,
		headers:   headers,
		params:    params,
		resultKey: spec.StringProperty("resultKey"),
	}, nil
}

func (e *httpExecutor) Execute(ctx context.Context, data []*model.FlowData) ([]*model.FlowData, error) {
	out := make([]*model.FlowData, 0, len(data))
	for _, d := range data {
		result, err := e.call(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, nil
}

func (e *httpExecutor) call(ctx context.Context, d *model.FlowData) (*model.FlowData, error) {
	params := util.ResolveParams(d.BusinessData, e.params)
	target := e.url
	var body io.Reader
	if e.method == http.MethodGet || e.method == http.MethodDelete {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid url %s: %w", target, err)
		}
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
		target = u.String()
	} else {
		payload := params
		if len(e.params) == 0 {
			payload = d.BusinessData
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, e.method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range util.ResolveParams(d.BusinessData, e.headers) {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", e.url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("http task %s returned status %d", e.url, resp.StatusCode)
	}
	result := d.Clone()
	if len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		logger.Warn("http task response is not json", zap.String("url", e.url), zap.Error(err))
		decoded = string(raw)
	}
	if obj, ok := decoded.(map[string]any); ok && e.resultKey == "" {
		for k, v := range obj {
			result.BusinessData[k] = v
		}
		return result, nil
	}
	key := e.resultKey
	if key == "" {
		key = "response"
	}
	result.BusinessData[key] = decoded
	return result, nil
}
