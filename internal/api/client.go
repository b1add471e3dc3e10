// Package api is the client of the expense backend REST API under /api
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"spese-cli/internal/core"
	"spese-cli/internal/log"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultUploadTimeout = 2 * time.Minute
)

type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	UploadTimeout time.Duration
	UserAgent     string
	Logger        *log.Logger
}

// Client talks to the backend over HTTP
type Client struct {
	http          *resty.Client
	timeout       time.Duration
	uploadTimeout time.Duration
	logger        *log.StructuredLogger
}

var _ Gateway = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "spese-cli"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	sl := log.NewStructuredLogger(logger.WithComponent(log.ComponentAPI))

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		id := RequestIDFromContext(r.Context())
		if id == "" {
			id = NewRequestID()
		}
		r.SetHeader(HeaderRequestID, id)
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		sl.LogAPICall(r.Request.Context(), r.Request.Method, r.Request.URL,
			r.Request.Header.Get(HeaderRequestID), r.StatusCode(), r.Time().Milliseconds())
		return nil
	})
	rc.OnError(func(r *resty.Request, err error) {
		var respErr *resty.ResponseError
		if errors.As(err, &respErr) {
			// already logged by OnAfterResponse
			return
		}
		sl.LogAPIFailure(r.Context(), r.Method, r.URL, r.Header.Get(HeaderRequestID), err)
	})

	return &Client{
		http:          rc,
		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
		logger:        sl,
	}
}

// do executes a request and decodes a successful JSON body into out
func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, build func(*resty.Request), out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.http.R().SetContext(ctx)
	if build != nil {
		build(req)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return classifyTransport(method, path, err)
	}
	if resp.IsError() {
		return decodeError(method, path, resp)
	}
	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &Error{
				Kind:       KindServer,
				StatusCode: resp.StatusCode(),
				Message:    "invalid response body",
				Method:     method,
				Path:       path,
				Err:        err,
			}
		}
	}
	return nil
}

func decodeError(method, path string, resp *resty.Response) *Error {
	e := &Error{
		Kind:       classifyStatus(resp.StatusCode()),
		StatusCode: resp.StatusCode(),
		Method:     method,
		Path:       path,
	}
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		e.Code = body.Code
		e.Message = body.Message
		if e.Message == "" {
			e.Message = body.Error
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(resp.Body()))
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode())
	}
	return e
}

// jsonBody marshals v up front so that encoding problems surface as request
// setup failures.
func jsonBody(method, path string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Kind: KindRequestSetup, Method: method, Path: path, Err: err}
	}
	return b, nil
}

func idParam(id int64) string {
	return strconv.FormatInt(id, 10)
}

// UploadExpense posts an audio recording or receipt image and returns the
// expense the backend extracted from it.
func (c *Client) UploadExpense(ctx context.Context, f File) (*UploadResult, error) {
	const path = "/api/expenses/upload"
	if f == nil {
		return nil, &Error{Kind: KindRequestSetup, Method: http.MethodPost, Path: path, Message: "no file to upload"}
	}

	var body uploadResponse
	err := c.do(ctx, http.MethodPost, path, c.uploadTimeout, func(r *resty.Request) {
		r.SetMultipartField("file", f.Name(), f.MIMEType(), f.Reader())
	}, &body)
	if err != nil {
		return nil, err
	}
	if body.Expense == nil {
		return nil, &Error{Kind: KindServer, Method: http.MethodPost, Path: path, Message: "response has no expense"}
	}
	exp, err := body.Expense.ToCore()
	if err != nil {
		return nil, &Error{Kind: KindServer, Method: http.MethodPost, Path: path, Message: "invalid expense in response", Err: err}
	}
	return &UploadResult{Message: body.Message, Expense: exp}, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var body []categoryDTO
	if err := c.do(ctx, http.MethodGet, "/api/categories", c.timeout, nil, &body); err != nil {
		return nil, err
	}
	out := make([]core.Category, 0, len(body))
	for _, dto := range body {
		out = append(out, dto.toCore())
	}
	return out, nil
}

func (c *Client) ListSubcategories(ctx context.Context) ([]core.Subcategory, error) {
	var body []subcategoryDTO
	if err := c.do(ctx, http.MethodGet, "/api/subcategories", c.timeout, nil, &body); err != nil {
		return nil, err
	}
	out := make([]core.Subcategory, 0, len(body))
	for _, dto := range body {
		out = append(out, dto.toCore())
	}
	return out, nil
}

func (c *Client) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	const path = "/api/categories"
	payload, err := jsonBody(http.MethodPost, path, categoryDTO{Name: strings.TrimSpace(name)})
	if err != nil {
		return core.Category{}, err
	}
	var dto categoryDTO
	err = c.do(ctx, http.MethodPost, path, c.timeout, func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(payload)
	}, &dto)
	return dto.toCore(), err
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, name string) (core.Category, error) {
	const path = "/api/categories/{id}"
	payload, err := jsonBody(http.MethodPut, path, categoryDTO{ID: id, Name: strings.TrimSpace(name)})
	if err != nil {
		return core.Category{}, err
	}
	var dto categoryDTO
	err = c.do(ctx, http.MethodPut, path, c.timeout, func(r *resty.Request) {
		r.SetPathParam("id", idParam(id)).
			SetHeader("Content-Type", "application/json").
			SetBody(payload)
	}, &dto)
	return dto.toCore(), err
}

func (c *Client) DeleteCategory(ctx context.Context, id int64, force bool) error {
	err := c.do(ctx, http.MethodDelete, "/api/categories/{id}", c.timeout, func(r *resty.Request) {
		r.SetPathParam("id", idParam(id))
		if force {
			r.SetQueryParam("force", "true")
		}
	}, nil)

	var apiErr *Error
	if errors.As(err, &apiErr) && !force && apiErr.StatusCode > 0 && isSubcategoryConflict(apiErr) {
		apiErr.Kind = KindConflict
	}
	return err
}

func (c *Client) CreateSubcategory(ctx context.Context, name string, categoryID int64) (core.Subcategory, error) {
	const path = "/api/subcategories"
	payload, err := jsonBody(http.MethodPost, path, subcategoryDTO{Name: strings.TrimSpace(name), CategoryID: categoryID})
	if err != nil {
		return core.Subcategory{}, err
	}
	var dto subcategoryDTO
	err = c.do(ctx, http.MethodPost, path, c.timeout, func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(payload)
	}, &dto)
	return dto.toCore(), err
}

func (c *Client) UpdateSubcategory(ctx context.Context, id int64, name string, categoryID int64) (core.Subcategory, error) {
	const path = "/api/subcategories/{id}"
	payload, err := jsonBody(http.MethodPut, path, subcategoryDTO{ID: id, Name: strings.TrimSpace(name), CategoryID: categoryID})
	if err != nil {
		return core.Subcategory{}, err
	}
	var dto subcategoryDTO
	err = c.do(ctx, http.MethodPut, path, c.timeout, func(r *resty.Request) {
		r.SetPathParam("id", idParam(id)).
			SetHeader("Content-Type", "application/json").
			SetBody(payload)
	}, &dto)
	return dto.toCore(), err
}

func (c *Client) DeleteSubcategory(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/subcategories/{id}", c.timeout, func(r *resty.Request) {
		r.SetPathParam("id", idParam(id))
	}, nil)
}

func (c *Client) ListExpenses(ctx context.Context, q ListQuery) (core.Page[core.Expense], error) {
	q = q.Normalize()
	var body expensePageDTO
	err := c.do(ctx, http.MethodGet, "/api/expenses", c.timeout, func(r *resty.Request) {
		r.SetQueryParam("page", strconv.Itoa(q.Page)).
			SetQueryParam("limit", strconv.Itoa(q.Limit))
		if !q.From.IsZero() {
			r.SetQueryParam("from", q.From.String())
		}
		if !q.To.IsZero() {
			r.SetQueryParam("to", q.To.String())
		}
	}, &body)
	if err != nil {
		return core.Page[core.Expense]{}, err
	}

	items, err := convertExpenses(body.Expenses)
	if err != nil {
		return core.Page[core.Expense]{}, &Error{Kind: KindServer, Method: http.MethodGet, Path: "/api/expenses", Message: "invalid expense in response", Err: err}
	}
	page := core.Page[core.Expense]{
		Items:      items,
		Page:       body.Page,
		PageSize:   body.Limit,
		Total:      body.Total,
		TotalPages: body.TotalPages,
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.PageSize == 0 {
		page.PageSize = q.Limit
	}
	return page, nil
}

func (c *Client) RecentExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit < 1 {
		limit = 5
	}
	var body []ExpenseFromAPI
	err := c.do(ctx, http.MethodGet, "/api/expenses/recent", c.timeout, func(r *resty.Request) {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}, &body)
	if err != nil {
		return nil, err
	}
	items, err := convertExpenses(body)
	if err != nil {
		return nil, &Error{Kind: KindServer, Method: http.MethodGet, Path: "/api/expenses/recent", Message: "invalid expense in response", Err: err}
	}
	return items, nil
}

func (c *Client) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	var dto ExpenseFromAPI
	err := c.do(ctx, http.MethodGet, "/api/expenses/{id}", c.timeout, func(r *resty.Request) {
		r.SetPathParam("id", idParam(id))
	}, &dto)
	if err != nil {
		return core.Expense{}, err
	}
	return c.expenseResult(http.MethodGet, "/api/expenses/{id}", dto)
}

func (c *Client) CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	const path = "/api/expenses"
	if err := in.Validate(); err != nil {
		return core.Expense{}, &Error{Kind: KindRequestSetup, Method: http.MethodPost, Path: path, Err: err}
	}
	payload, err := jsonBody(http.MethodPost, path, newExpenseInputDTO(in))
	if err != nil {
		return core.Expense{}, err
	}
	var dto ExpenseFromAPI
	err = c.do(ctx, http.MethodPost, path, c.timeout, func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(payload)
	}, &dto)
	if err != nil {
		return core.Expense{}, err
	}
	return c.expenseResult(http.MethodPost, path, dto)
}

func (c *Client) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	const path = "/api/expenses/{id}"
	if err := in.Validate(); err != nil {
		return core.Expense{}, &Error{Kind: KindRequestSetup, Method: http.MethodPut, Path: path, Err: err}
	}
	payload, err := jsonBody(http.MethodPut, path, newExpenseInputDTO(in))
	if err != nil {
		return core.Expense{}, err
	}
	var dto ExpenseFromAPI
	err = c.do(ctx, http.MethodPut, path, c.timeout, func(r *resty.Request) {
		r.SetPathParam("id", idParam(id)).
			SetHeader("Content-Type", "application/json").
			SetBody(payload)
	}, &dto)
	if err != nil {
		return core.Expense{}, err
	}
	return c.expenseResult(http.MethodPut, path, dto)
}

func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/expenses/{id}", c.timeout, func(r *resty.Request) {
		r.SetPathParam("id", idParam(id))
	}, nil)
}

func (c *Client) expenseResult(method, path string, dto ExpenseFromAPI) (core.Expense, error) {
	exp, err := dto.ToCore()
	if err != nil {
		return core.Expense{}, &Error{Kind: KindServer, Method: method, Path: path, Message: "invalid expense in response", Err: fmt.Errorf("decode: %w", err)}
	}
	return exp, nil
}
