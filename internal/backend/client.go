package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tshop/admin/model"
)

// Operation names used in logs, spans and metrics.
const (
	OpFindAll     = "findAll"
	OpCreate      = "create"
	OpUpdate      = "update"
	OpUpdateByKey = "updateByKey"
	OpDelete      = "delete"
	OpDeleteByKey = "deleteByKey"
)

// Client calls the REST endpoints of one resource collection. It is safe
// for concurrent use.
type Client struct {
	svc  *Service
	base string
}

// BaseURL returns the collection URL every endpoint is relative to.
func (c *Client) BaseURL() string {
	return c.base
}

// FindAll fetches one page. The page number is sent as given.
func (c *Client) FindAll(ctx context.Context, page, size int) (model.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var p model.Page
	err := c.svc.exchange(ctx, OpFindAll, http.MethodGet, c.base+model.PathFindAll+"?"+q.Encode(), nil, &p)
	if err != nil {
		return model.Page{}, err
	}
	return p, nil
}

// Create posts a new record and returns the saved record.
func (c *Client) Create(ctx context.Context, r model.Resource) (model.Resource, error) {
	return c.save(ctx, OpCreate, http.MethodPost, c.base+model.PathCreate, r)
}

// Update replaces the record with the given id and returns the saved record.
func (c *Client) Update(ctx context.Context, id string, r model.Resource) (model.Resource, error) {
	return c.save(ctx, OpUpdate, http.MethodPut, c.base+model.PathUpdate+"/"+url.PathEscape(id), r)
}

// UpdateByKey saves a record addressed by the natural key fields in its body.
func (c *Client) UpdateByKey(ctx context.Context, r model.Resource) (model.Resource, error) {
	return c.save(ctx, OpUpdateByKey, http.MethodPut, c.base+model.PathUpdate, r)
}

func (c *Client) save(ctx context.Context, op, method, u string, r model.Resource) (model.Resource, error) {
	var saved model.Resource
	if err := c.svc.exchange(ctx, op, method, u, r, &saved); err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete removes the record with the given id. ok is true only for a 2xx
// response; any other outcome comes with a TransportError.
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	err := c.svc.exchange(ctx, OpDelete, http.MethodDelete, c.base+model.PathDelete+"/"+url.PathEscape(id), nil, nil)
	return err == nil, err
}

// DeleteByKey removes the record addressed by the natural key sent as the
// request body.
func (c *Client) DeleteByKey(ctx context.Context, key map[string]any) (bool, error) {
	err := c.svc.exchange(ctx, OpDeleteByKey, http.MethodDelete, c.base+model.PathDelete, key, nil)
	return err == nil, err
}
